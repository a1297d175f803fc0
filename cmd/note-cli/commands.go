package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/noteprotocol/note-wallet/internal/core/application"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const defaultMintRetryDelay = 15 * time.Second

var (
	mnemonicFlag = &cli.StringFlag{
		Name:  "mnemonic",
		Usage: "mnemonic to restore, a new one is generated when empty",
	}
	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "replace the mnemonic of an initialized wallet",
	}
	receiversFlag = &cli.StringFlag{
		Name:  "receivers",
		Usage: "JSON encoded receivers of the send transaction",
	}
	toFlag = &cli.StringFlag{
		Name:  "to",
		Usage: "recipient address",
	}
	amountFlag = &cli.Int64Flag{
		Name:  "amount",
		Usage: "amount to send in sats",
	}
	tokenAmountFlag = &cli.Int64Flag{
		Name:     "amount",
		Usage:    "amount of tokens to send, in base units",
		Required: true,
	}
	tickFlag = &cli.StringFlag{
		Name:     "tick",
		Usage:    "token ticker",
		Required: true,
	}
	mintAmountFlag = &cli.Float64Flag{
		Name:  "amount",
		Usage: "amount to mint in token units, the mint limit when 0",
	}
	loopFlag = &cli.IntFlag{
		Name:  "loop",
		Usage: "number of successful mints to perform",
		Value: 1,
	}
	bitworkFlag = &cli.StringFlag{
		Name:  "bitwork",
		Usage: "hex prefix the txid must start with",
	}
	stopFlag = &cli.BoolFlag{
		Name:  "stop",
		Usage: "stop at the first failed mint instead of retrying",
	}
	retryDelayFlag = &cli.DurationFlag{
		Name:  "retry-delay",
		Usage: "delay before retrying a failed mint",
		Value: defaultMintRetryDelay,
	}
	maxFlag = &cli.Int64Flag{
		Name:     "max",
		Usage:    "max supply in token units",
		Required: true,
	}
	limFlag = &cli.Int64Flag{
		Name:     "lim",
		Usage:    "mint limit in token units",
		Required: true,
	}
	decFlag = &cli.IntFlag{
		Name:  "dec",
		Usage: "token decimals",
		Value: 8,
	}
	startFlag = &cli.Int64Flag{
		Name:  "start",
		Usage: "first block height mints are accepted at, the current height by default",
	}
	schFlag = &cli.StringFlag{
		Name:  "sch",
		Usage: "hash of the contract validating the token",
	}
	descFlag = &cli.StringFlag{
		Name:  "desc",
		Usage: "token description",
	}
	logoFlag = &cli.StringFlag{
		Name:  "logo",
		Usage: "token logo url",
	}
	webFlag = &cli.StringFlag{
		Name:  "web",
		Usage: "token website",
	}
	fileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "path of the JSON contract to publish",
		Required: true,
	}
	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "address to inspect",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "max number of entries, all when 0",
	}
)

var (
	initCommand = cli.Command{
		Name:  "init",
		Usage: "Create or restore the wallet mnemonic",
		Flags: []cli.Flag{mnemonicFlag, forceFlag},
		Action: func(ctx *cli.Context) error {
			return initWallet(ctx)
		},
	}
	infoCommand = cli.Command{
		Name:  "info",
		Usage: "Shows wallet root key and current account",
		Action: func(ctx *cli.Context) error {
			return info(ctx)
		},
	}
	balanceCommand = cli.Command{
		Name:  "balance",
		Usage: "Shows the balance of the main and token addresses",
		Action: func(ctx *cli.Context) error {
			return balance(ctx)
		},
	}
	utxosCommand = cli.Command{
		Name:  "utxos",
		Usage: "Lists the spendable utxos of the wallet",
		Action: func(ctx *cli.Context) error {
			return utxos(ctx)
		},
	}
	tokenUtxosCommand = cli.Command{
		Name:  "token-utxos",
		Usage: "Lists the token utxos of a tick",
		Flags: []cli.Flag{tickFlag},
		Action: func(ctx *cli.Context) error {
			return tokenUtxos(ctx)
		},
	}
	sendCommand = cli.Command{
		Name:  "send",
		Usage: "Send sats from the main address",
		Flags: []cli.Flag{receiversFlag, toFlag, amountFlag},
		Action: func(ctx *cli.Context) error {
			return send(ctx)
		},
	}
	sendTokenCommand = cli.Command{
		Name:  "send-token",
		Usage: "Transfer N20 tokens",
		Flags: []cli.Flag{tickFlag, toFlag, tokenAmountFlag},
		Action: func(ctx *cli.Context) error {
			return sendToken(ctx)
		},
	}
	mintCommand = cli.Command{
		Name:  "mint",
		Usage: "Mint N20 tokens",
		Flags: []cli.Flag{tickFlag, mintAmountFlag, loopFlag, bitworkFlag, stopFlag, retryDelayFlag},
		Action: func(ctx *cli.Context) error {
			return mint(ctx)
		},
	}
	deployCommand = cli.Command{
		Name:  "deploy",
		Usage: "Deploy a new N20 token",
		Flags: []cli.Flag{
			tickFlag, maxFlag, limFlag, decFlag, startFlag, bitworkFlag,
			schFlag, descFlag, logoFlag, webFlag,
		},
		Action: func(ctx *cli.Context) error {
			return deploy(ctx)
		},
	}
	publishCommand = cli.Command{
		Name:  "publish",
		Usage: "Publish a smart contract",
		Flags: []cli.Flag{fileFlag},
		Action: func(ctx *cli.Context) error {
			return publish(ctx)
		},
	}
	tokensCommand = cli.Command{
		Name:  "tokens",
		Usage: "Lists the token balances of an address, the token address by default",
		Flags: []cli.Flag{addressFlag},
		Action: func(ctx *cli.Context) error {
			return tokens(ctx)
		},
	}
	tokenInfoCommand = cli.Command{
		Name:  "token-info",
		Usage: "Shows the deploy info of a token",
		Flags: []cli.Flag{tickFlag},
		Action: func(ctx *cli.Context) error {
			return tokenInfo(ctx)
		},
	}
	allTokensCommand = cli.Command{
		Name:  "all-tokens",
		Usage: "Lists every deployed N20 token",
		Action: func(ctx *cli.Context) error {
			return allTokens(ctx)
		},
	}
	bestBlockCommand = cli.Command{
		Name:  "best-block",
		Usage: "Shows the chain tip known to the indexer",
		Action: func(ctx *cli.Context) error {
			return bestBlock(ctx)
		},
	}
	addressScriptCommand = cli.Command{
		Name:  "address-script",
		Usage: "Shows the output script and script hash of an address",
		Flags: []cli.Flag{addressFlag},
		Action: func(ctx *cli.Context) error {
			return addressScript(ctx)
		},
	}
	historyCommand = cli.Command{
		Name:  "history",
		Usage: "Lists the transactions broadcast by the wallet",
		Flags: []cli.Flag{limitFlag},
		Action: func(ctx *cli.Context) error {
			return history(ctx)
		},
	}
	versionCommand = cli.Command{
		Name:  "version",
		Usage: "Display version information",
		Action: func(ctx *cli.Context) error {
			fmt.Printf("note-cli version: %s\n", Version)
			return nil
		},
	}
)

func initWallet(ctx *cli.Context) error {
	mnemonic, err := cfg.InitWallet(ctx.String(mnemonicFlag.Name), ctx.Bool(forceFlag.Name))
	if err != nil {
		return err
	}
	svc, err := appService()
	if err != nil {
		return err
	}
	walletInfo, err := svc.GetInfo(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"mnemonic": mnemonic,
		"envFile":  cfg.EnvFile,
		"wallet":   walletInfo,
	})
}

func info(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.GetInfo(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func balance(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.GetBalance(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func utxos(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.ListUtxos(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func tokenUtxos(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.ListTokenUtxos(ctx.Context, ctx.String(tickFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func send(ctx *cli.Context) error {
	receivers := ctx.String(receiversFlag.Name)
	to := ctx.String(toFlag.Name)
	amount := ctx.Int64(amountFlag.Name)
	if receivers != "" && to != "" {
		return fmt.Errorf("only one of receivers and to must be specified")
	}

	targets, err := parseReceivers(receivers, to, amount)
	if err != nil {
		return err
	}

	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.Send(ctx.Context, targets)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func sendToken(ctx *cli.Context) error {
	to := ctx.String(toFlag.Name)
	if to == "" {
		return fmt.Errorf("missing recipient address")
	}
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.SendToken(
		ctx.Context, to, ctx.String(tickFlag.Name), ctx.Int64(tokenAmountFlag.Name),
	)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// mint keeps minting until loop mints succeeded. Failures are retried after a delay unless
// stop is set.
func mint(ctx *cli.Context) error {
	loop := ctx.Int(loopFlag.Name)
	if loop <= 0 {
		return fmt.Errorf("loop must be positive")
	}
	svc, err := appService()
	if err != nil {
		return err
	}

	req := application.MintRequest{
		Tick:    ctx.String(tickFlag.Name),
		Amount:  ctx.Float64(mintAmountFlag.Name),
		Bitwork: ctx.String(bitworkFlag.Name),
	}
	delay := ctx.Duration(retryDelayFlag.Name)

	for minted := 0; minted < loop; {
		resp, err := svc.Mint(ctx.Context, req)
		if err == nil {
			minted++
			if err := printJSON(resp); err != nil {
				return err
			}
			continue
		}
		if ctx.Bool(stopFlag.Name) || ctx.Context.Err() != nil {
			return err
		}

		log.WithError(err).Warnf("mint %d/%d failed, retrying in %s", minted+1, loop, delay)
		select {
		case <-ctx.Context.Done():
			return ctx.Context.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func deploy(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}

	req := application.DeployRequest{
		Tick:    ctx.String(tickFlag.Name),
		Max:     ctx.Int64(maxFlag.Name),
		Lim:     ctx.Int64(limFlag.Name),
		Dec:     ctx.Int(decFlag.Name),
		Bitwork: ctx.String(bitworkFlag.Name),
		Sch:     ctx.String(schFlag.Name),
		Desc:    ctx.String(descFlag.Name),
		Logo:    ctx.String(logoFlag.Name),
		Web:     ctx.String(webFlag.Name),
	}
	if ctx.IsSet(startFlag.Name) {
		start := ctx.Int64(startFlag.Name)
		req.Start = &start
	}

	resp, err := svc.Deploy(ctx.Context, req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func publish(ctx *cli.Context) error {
	contract, err := readContract(ctx.String(fileFlag.Name))
	if err != nil {
		return err
	}

	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.Publish(ctx.Context, contract)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func tokens(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.GetTokenList(ctx.Context, ctx.String(addressFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func tokenInfo(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.GetTokenInfo(ctx.Context, ctx.String(tickFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func allTokens(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.GetAllTokens(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func bestBlock(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.GetBestBlock(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func addressScript(ctx *cli.Context) error {
	address := ctx.String(addressFlag.Name)
	if address == "" {
		return fmt.Errorf("missing address")
	}
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.AddressScript(address)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"address":    resp.Address,
		"type":       resp.Type,
		"script":     resp.ScriptHex(),
		"scriptHash": resp.ScriptHash,
	})
}

func history(ctx *cli.Context) error {
	svc, err := appService()
	if err != nil {
		return err
	}
	resp, err := svc.History(ctx.Context, ctx.Int(limitFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// readContract decodes the JSON contract at path keeping numbers as written, so that whole
// floats and large integers are packed like the original document.
func readContract(path string) (map[string]any, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract: %s", err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()

	contract := make(map[string]any)
	if err := dec.Decode(&contract); err != nil {
		return nil, fmt.Errorf("invalid contract: %s", err)
	}
	return contract, nil
}

type receiver struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func parseReceivers(receivers, to string, amount int64) ([]notelib.SendTarget, error) {
	list := make([]receiver, 0)
	if receivers != "" {
		if err := json.Unmarshal([]byte(receivers), &list); err != nil {
			return nil, fmt.Errorf("invalid receivers: %s", err)
		}
	} else {
		list = append(list, receiver{To: to, Amount: amount})
	}

	targets := make([]notelib.SendTarget, 0, len(list))
	for _, r := range list {
		if r.To == "" {
			return nil, fmt.Errorf("missing receiver address")
		}
		if r.Amount <= 0 {
			return nil, fmt.Errorf("invalid amount %d for %s", r.Amount, r.To)
		}
		targets = append(targets, notelib.SendTarget{Address: r.To, Amount: r.Amount})
	}
	return targets, nil
}
