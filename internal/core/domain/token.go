package domain

import (
	"encoding/json"
	"fmt"
)

// TokenInfo is the deploy record of an N20 token as served by the indexer. Numbers may come
// as JSON numbers or numeric strings.
type TokenInfo struct {
	Tick    string      `json:"tick"`
	Max     json.Number `json:"max"`
	Lim     json.Number `json:"lim"`
	Dec     json.Number `json:"dec"`
	Start   json.Number `json:"start,omitempty"`
	Bitwork string      `json:"bitwork,omitempty"`
	Sch     string      `json:"sch,omitempty"`
}

func (t TokenInfo) Decimals() (int, error) {
	if t.Dec == "" {
		return 0, nil
	}
	dec, err := t.Dec.Int64()
	if err != nil || dec < 0 || dec > 18 {
		return 0, fmt.Errorf("invalid decimals %q for %s", t.Dec, t.Tick)
	}
	return int(dec), nil
}

func (t TokenInfo) Limit() (int64, error) {
	lim, err := t.Lim.Int64()
	if err != nil {
		return 0, fmt.Errorf("invalid mint limit %q for %s", t.Lim, t.Tick)
	}
	return lim, nil
}

type TokenBalance struct {
	Tick        string      `json:"tick"`
	Confirmed   json.Number `json:"confirmed"`
	Unconfirmed json.Number `json:"unconfirmed"`
	Dec         json.Number `json:"dec,omitempty"`
}

type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

type BlockHeader struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash,omitempty"`
}
