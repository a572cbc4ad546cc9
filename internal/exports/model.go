package exports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"docrecon-backend/internal/remote"
)

// Fixed keys of an export payload. Everything else lands in Fields.
const (
	keyID          = "id"
	keyCodigo      = "codigo"
	keyValor       = "valor"
	keyEmpresa     = "empresa"
	keyCNPJ        = "cnpj"
	keyData        = "data"
	keyTipoBalanco = "tipo_balanco"
	keyDocumentID  = "documentid"
)

// ExportResult is the extraction result of one completed document.
type ExportResult struct {
	DocumentID  string
	RemoteID    string
	ID          string
	Codigo      string
	Valor       string
	Empresa     string
	CNPJ        string
	Data        string
	TipoBalanco string
	// Amount is Valor parsed as a decimal; invalid when Valor is not numeric.
	Amount decimal.NullDecimal
	Fields map[string]any
}

// fixedKeys maps lowercased payload keys onto the fixed fields.
var fixedKeys = map[string]string{
	keyID:          keyID,
	keyCodigo:      keyCodigo,
	keyValor:       keyValor,
	keyEmpresa:     keyEmpresa,
	keyCNPJ:        keyCNPJ,
	keyData:        keyData,
	keyTipoBalanco: keyTipoBalanco,
	"tipobalanco":  keyTipoBalanco,
	keyDocumentID:  keyDocumentID,
}

// FromExport maps a raw remote export onto an ExportResult. Fixed keys match
// case-insensitively; when a payload carries several spellings of one key
// the exact lowercase spelling wins and the others stay in Fields.
func FromExport(documentID string, exp remote.Export) (ExportResult, error) {
	res := ExportResult{
		DocumentID: documentID,
		RemoteID:   exp.RemoteID,
		Fields:     make(map[string]any),
	}
	chosen := make(map[string]string, len(fixedKeys))
	var extra []string
	for _, key := range slices.Sorted(maps.Keys(exp.Fields)) {
		canonical, ok := fixedKeys[strings.ToLower(key)]
		if !ok {
			extra = append(extra, key)
			continue
		}
		if canonical == keyDocumentID {
			// Remote echo of its own id; RemoteID already carries it.
			continue
		}
		prev, taken := chosen[canonical]
		switch {
		case !taken:
			chosen[canonical] = key
		case key == canonical:
			chosen[canonical] = key
			extra = append(extra, prev)
		default:
			extra = append(extra, key)
		}
	}

	for canonical, key := range chosen {
		text := rawText(exp.Fields[key])
		switch canonical {
		case keyID:
			res.ID = text
		case keyCodigo:
			res.Codigo = text
		case keyValor:
			res.Valor = text
		case keyEmpresa:
			res.Empresa = text
		case keyCNPJ:
			res.CNPJ = text
		case keyData:
			res.Data = text
		case keyTipoBalanco:
			res.TipoBalanco = text
		}
	}
	for _, key := range extra {
		var v any
		dec := json.NewDecoder(bytes.NewReader(exp.Fields[key]))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return ExportResult{}, fmt.Errorf("decode export field %q: %w", key, err)
		}
		res.Fields[key] = v
	}
	if amount, err := ParseAmount(res.Valor); err == nil {
		res.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
	}
	return res, nil
}

// ParseAmount parses Brazilian ("1.234,56") and plain ("1234.56") amounts.
// A comma is only a decimal separator when no dot follows it, so US-style
// grouping such as "1,234.56" is rejected rather than misread.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if comma := strings.LastIndex(s, ","); comma >= 0 {
		if strings.LastIndex(s, ".") > comma {
			return decimal.Decimal{}, fmt.Errorf("parse amount %q: ambiguous separators", raw)
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// rawText renders a JSON scalar as text; strings lose their quotes.
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

// MarshalJSON flattens Fields next to the fixed keys, as the remote does.
func (r ExportResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+10)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["documentId"] = r.DocumentID
	out["remoteId"] = r.RemoteID
	out[keyID] = r.ID
	out[keyCodigo] = r.Codigo
	out[keyValor] = r.Valor
	out[keyEmpresa] = r.Empresa
	out[keyCNPJ] = r.CNPJ
	out[keyData] = r.Data
	out[keyTipoBalanco] = r.TipoBalanco
	if r.Amount.Valid {
		out["amount"] = r.Amount.Decimal.String()
	}
	return json.Marshal(out)
}
