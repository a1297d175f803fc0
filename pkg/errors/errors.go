package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code uint16
	Name string
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

// Is reports whether any error in err's chain carries this code.
func (c Code[MT]) Is(err error) bool {
	var typed Error
	for err != nil {
		if !stderrors.As(err, &typed) {
			return false
		}
		if typed.Code() == c.Code && typed.CodeName() == c.Name {
			return true
		}
		err = stderrors.Unwrap(typed)
	}
	return false
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type InsufficientFundsMetadata struct {
	TotalInput  int64 `json:"total_input"`
	TotalOutput int64 `json:"total_output"`
	Fee         int64 `json:"fee"`
}

type PayloadTooLargeMetadata struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`
}

type NoUtxoFoundMetadata struct {
	ScriptHash string `json:"script_hash"`
}

type CommitUtxoTimeoutMetadata struct {
	Address  string `json:"address"`
	Attempts int    `json:"attempts"`
}

type FeeServiceMetadata struct {
	URL string `json:"url"`
}

type BroadcastMetadata struct {
	Txid string `json:"txid"`
}

type MiningExhaustedMetadata struct {
	Bitwork     string `json:"bitwork"`
	MaxLocktime uint32 `json:"max_locktime"`
}

type InvalidUtxoMetadata struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
	Type string `json:"type"`
}

type InputMetadata struct {
	InputIndex int `json:"input_index"`
}

type TokenMetadata struct {
	Tick string `json:"tick"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR"}
var INSUFFICIENT_FUNDS = Code[InsufficientFundsMetadata]{1, "INSUFFICIENT_FUNDS"}
var PAYLOAD_TOO_LARGE = Code[PayloadTooLargeMetadata]{2, "PAYLOAD_TOO_LARGE"}
var NO_UTXO_FOUND = Code[NoUtxoFoundMetadata]{3, "NO_UTXO_FOUND"}
var COMMIT_UTXO_TIMEOUT = Code[CommitUtxoTimeoutMetadata]{4, "COMMIT_UTXO_TIMEOUT"}
var FEE_SERVICE_UNAVAILABLE = Code[FeeServiceMetadata]{5, "FEE_SERVICE_UNAVAILABLE"}
var BROADCAST_FAILED = Code[BroadcastMetadata]{6, "BROADCAST_FAILED"}
var MINING_EXHAUSTED = Code[MiningExhaustedMetadata]{7, "MINING_EXHAUSTED"}
var INVALID_UTXO = Code[InvalidUtxoMetadata]{8, "INVALID_UTXO"}
var SIGNING_FAILED = Code[InputMetadata]{9, "SIGNING_FAILED"}
var TOKEN_NOT_FOUND = Code[TokenMetadata]{10, "TOKEN_NOT_FOUND"}
