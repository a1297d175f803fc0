package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noteprotocol/note-wallet/internal/core/ports"
	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMainnetURL = "https://mempool.space"
	DefaultTestnetURL = "https://mempool.space/testnet4"

	recommendedFeesEndpoint = "/api/v1/fees/recommended"
	defaultTimeout          = 10 * time.Second
)

// recommendedFees are in sats/vB.
type recommendedFees struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	EconomyFee  int64 `json:"economyFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

type feeEstimator struct {
	url        string
	httpClient *http.Client
}

// New returns a fee estimator reading the recommended fees of a mempool.space compatible API.
// An empty url selects the public instance of the network.
func New(url string, network notelib.Network) ports.FeeEstimator {
	if url == "" {
		url = DefaultMainnetURL
		if network == notelib.NetworkTest {
			url = DefaultTestnetURL
		}
	}
	return &feeEstimator{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// GetFeeRates converts the recommended fees to sats/kB: slow is the lower of the hour and half
// hour fees, average the higher one, fast the highest of those and the fastest fee.
func (f *feeEstimator) GetFeeRates(ctx context.Context) (*notelib.FeeRates, error) {
	fees, err := f.recommendedFees(ctx)
	if err != nil {
		return nil, errors.FEE_SERVICE_UNAVAILABLE.Wrap(err).
			WithMetadata(errors.FeeServiceMetadata{URL: f.url})
	}

	rates := &notelib.FeeRates{
		Slow:    min(fees.HourFee, fees.HalfHourFee) * 1000,
		Average: max(fees.HourFee, fees.HalfHourFee) * 1000,
		Fast:    max(fees.HourFee, fees.HalfHourFee, fees.FastestFee) * 1000,
	}
	if rates.Slow <= 0 {
		return nil, errors.FEE_SERVICE_UNAVAILABLE.New("invalid recommended fees %+v", *fees).
			WithMetadata(errors.FeeServiceMetadata{URL: f.url})
	}

	log.WithFields(log.Fields{
		"slow": rates.Slow,
		"avg":  rates.Average,
		"fast": rates.Fast,
	}).Debug("fetched fee rates")
	return rates, nil
}

func (f *feeEstimator) recommendedFees(ctx context.Context) (*recommendedFees, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+recommendedFeesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var fees recommendedFees
	if err := json.NewDecoder(resp.Body).Decode(&fees); err != nil {
		return nil, fmt.Errorf("failed to parse recommended fees: %w", err)
	}
	return &fees, nil
}
