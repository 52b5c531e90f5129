package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/pkg/errors"
)

// Collection names used in validation messages
const (
	SourceCollection = "record1"
	TargetCollection = "record2"
)

// DecodeSources validates raw as a JSON array of source records.
//
// In strict mode the first invalid element is returned as a *errors.RecordError.
// Otherwise invalid elements are skipped and listed in the returned summary,
// which is nil when every element was valid.
func DecodeSources(collection string, raw []byte, strict bool) ([]models.SourceRecord, *errors.ErrorSummary, error) {
	items, err := splitArray(collection, raw)
	if err != nil {
		return nil, nil, err
	}

	records := make([]models.SourceRecord, 0, len(items))
	var skipped []*errors.ReconcilerError

	for i, item := range items {
		obj, rerr := objectAt(collection, i, item)
		if rerr == nil {
			rerr = checkShape(collection, i, obj)
		}
		if rerr != nil {
			if strict {
				return nil, nil, rerr
			}
			skipped = append(skipped, rerr.ReconcilerError)
			continue
		}
		records = append(records, sourceFromObject(obj))
	}

	return records, summarize(skipped), nil
}

// DecodeTargets validates raw as a JSON array of target records. An optional
// transactionType must name a credit or a debit.
func DecodeTargets(collection string, raw []byte, strict bool) ([]models.TargetRecord, *errors.ErrorSummary, error) {
	items, err := splitArray(collection, raw)
	if err != nil {
		return nil, nil, err
	}

	records := make([]models.TargetRecord, 0, len(items))
	var skipped []*errors.ReconcilerError

	for i, item := range items {
		obj, rerr := objectAt(collection, i, item)
		if rerr == nil {
			rerr = checkShape(collection, i, obj)
		}
		var direction models.Direction
		if rerr == nil {
			direction, rerr = directionAt(collection, i, obj)
		}
		if rerr != nil {
			if strict {
				return nil, nil, rerr
			}
			skipped = append(skipped, rerr.ReconcilerError)
			continue
		}

		base := sourceFromObject(obj)
		records = append(records, models.TargetRecord{
			ItemID:          base.ItemID,
			Details:         base.Details,
			Amount:          base.Amount,
			Date:            base.Date,
			TransactionType: direction,
		})
	}

	return records, summarize(skipped), nil
}

// IsArray reports whether raw holds a JSON array
func IsArray(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func splitArray(collection string, raw []byte) ([]json.RawMessage, error) {
	if !IsArray(raw) {
		return nil, errors.ValidationError(errors.CodeInvalidType, collection, nil, nil).
			WithMessage(fmt.Sprintf("%s must be an array", collection))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, collection, err).
			WithMessage(fmt.Sprintf("%s must be a valid JSON array", collection))
	}
	return items, nil
}

func objectAt(collection string, index int, item json.RawMessage) (map[string]interface{}, *errors.RecordError) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, invalidObject(collection, index)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, invalidObject(collection, index)
	}
	return obj, nil
}

func invalidObject(collection string, index int) *errors.RecordError {
	ctx := &errors.RecordContext{Collection: collection, Index: index, Expected: "object"}
	err := errors.NewRecordError(errors.CodeInvalidType, ctx, fmt.Sprintf("%s is not a valid object", ctx.Path()))
	err.WithSuggestion("each element must be an object with itemid, details, amount and date")
	return err
}

// checkShape applies the field type checks in a fixed order so the first
// failure reported is stable
func checkShape(collection string, index int, obj map[string]interface{}) *errors.RecordError {
	if _, ok := obj[FieldItemID].(string); !ok {
		return errors.FieldTypeError(collection, index, FieldItemID, "string", obj[FieldItemID])
	}
	if _, ok := obj[FieldDetails].(string); !ok {
		return errors.FieldTypeError(collection, index, FieldDetails, "string", obj[FieldDetails])
	}
	n, ok := obj[FieldAmount].(json.Number)
	if !ok {
		return errors.FieldTypeError(collection, index, FieldAmount, "number", obj[FieldAmount])
	}
	if _, err := decimal.NewFromString(n.String()); err != nil {
		return errors.FieldTypeError(collection, index, FieldAmount, "number", n)
	}
	if _, ok := obj[FieldDate].(string); !ok {
		return errors.FieldTypeError(collection, index, FieldDate, "string (YYYY-MM-DD format)", obj[FieldDate])
	}
	return nil
}

func directionAt(collection string, index int, obj map[string]interface{}) (models.Direction, *errors.RecordError) {
	raw, present := obj[FieldTransactionType]
	if !present || raw == nil {
		return "", nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", errors.FieldTypeError(collection, index, FieldTransactionType, "string", raw)
	}
	if s == "" {
		return "", nil
	}

	direction, err := models.ParseDirection(s)
	if err != nil {
		ctx := &errors.RecordContext{
			Collection: collection,
			Index:      index,
			Field:      FieldTransactionType,
			Value:      s,
			Expected:   "credit or debit",
		}
		rerr := errors.NewRecordError(errors.CodeInvalidType, ctx, fmt.Sprintf("%s must be credit or debit", ctx.Path()))
		rerr.WithSuggestion("use credit, debit or a common abbreviation such as CR or DR")
		return "", rerr
	}
	return direction, nil
}

// sourceFromObject builds a record from an object that passed checkShape
func sourceFromObject(obj map[string]interface{}) models.SourceRecord {
	amount, _ := decimal.NewFromString(obj[FieldAmount].(json.Number).String())
	return models.SourceRecord{
		ItemID:  obj[FieldItemID].(string),
		Details: obj[FieldDetails].(string),
		Amount:  amount,
		Date:    obj[FieldDate].(string),
	}
}

func summarize(errs []*errors.ReconcilerError) *errors.ErrorSummary {
	if len(errs) == 0 {
		return nil
	}
	return errors.NewErrorSummary(errs)
}
