// internal/loader/decode.go
// Decoding of change-feed record images. The fast path decodes numbers to
// float64 like everything else in the system; feeds carrying high-precision
// decimals (array-store gain/offset values, full-precision coordinates)
// would silently round through that path, so a raw scan of the image's
// number literals decides when to fall back to a json.Number decode.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/geostac/geostac-ingest-go/internal/model"
)

// DecodeRecord deserializes a change-feed record image. Images whose number
// literals survive a float64 round-trip decode on the fast path; any literal
// that would lose precision reroutes the whole image through a json.Number
// decode, leaving every number in the item payload as its original text.
func DecodeRecord(raw []byte) (model.IngestionRecord, error) {
	var rec model.IngestionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	if !hasPrecisionLoss(raw) {
		return rec, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var precise model.IngestionRecord
	if err := dec.Decode(&precise); err != nil {
		return rec, err
	}
	return precise, nil
}

// hasPrecisionLoss reports whether any number literal in the raw JSON would
// change value when decoded to float64 and re-encoded.
func hasPrecisionLoss(raw []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			// Unscannable input already failed the fast decode.
			return false
		}
		if n, ok := tok.(json.Number); ok && lossyNumber(n.String()) {
			return true
		}
	}
}

// lossyNumber reports whether a float64 round-trip changes the literal's
// value. "0.1" re-encodes as 0.1 and is fine; "9007199254740993" re-encodes
// as 9007199254740992 and is not.
func lossyNumber(lit string) bool {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsInf(f, 0) {
		return true
	}
	exact, ok := new(big.Rat).SetString(lit)
	if !ok {
		return true
	}
	rendered, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return true
	}
	return exact.Cmp(rendered) != 0
}
