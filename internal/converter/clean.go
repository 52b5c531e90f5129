package converter

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"semantic-reconciliation-service/internal/models"
)

// cleanRecord normalizes one model-produced object into a target record.
// A missing itemid is replaced by a fresh UUID; the second result reports it.
func cleanRecord(obj map[string]interface{}) (models.TargetRecord, bool) {
	record := models.TargetRecord{
		ItemID:  strings.TrimSpace(cast.ToString(obj["itemid"])),
		Details: strings.TrimSpace(cast.ToString(obj["details"])),
		Amount:  cleanAmount(obj["amount"]),
		Date:    models.NormalizeDate(cast.ToString(obj["date"])),
	}

	generated := false
	if record.ItemID == "" {
		record.ItemID = uuid.NewString()
		generated = true
	}

	if direction, err := models.ParseDirection(cast.ToString(obj["transactionType"])); err == nil {
		record.TransactionType = direction
	}

	return record, generated
}

// cleanAmount accepts JSON numbers as they are and strips everything but
// digits, dots and minus signs from strings. Anything else is zero.
func cleanAmount(v interface{}) decimal.Decimal {
	switch a := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(a.String()); err == nil {
			return d
		}
		return models.ParseLooseAmount(a.String())
	case string:
		return models.ParseLooseAmount(a)
	case nil:
		return decimal.Zero
	default:
		f, err := cast.ToFloat64E(a)
		if err != nil {
			return decimal.Zero
		}
		return decimal.NewFromFloat(f)
	}
}
