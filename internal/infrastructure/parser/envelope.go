package parser

import "github.com/tidwall/gjson"

// Extraction pulls the row array out of one known response envelope shape.
type Extraction struct {
	Name    string
	Extract func(doc gjson.Result) ([]gjson.Result, bool)
}

// pathExtraction accepts the response when path resolves to an array. An
// empty path means the document itself is the array.
func pathExtraction(path string) Extraction {
	name := path
	if name == "" {
		name = "bare"
	}
	return Extraction{
		Name: name,
		Extract: func(doc gjson.Result) ([]gjson.Result, bool) {
			value := doc
			if path != "" {
				value = doc.Get(path)
			}
			if !value.IsArray() {
				return nil, false
			}
			return value.Array(), true
		},
	}
}

// DefaultExtractions lists the tolerated envelopes in priority order.
var DefaultExtractions = []Extraction{
	pathExtraction(""),
	pathExtraction("data"),
	pathExtraction("rows"),
	pathExtraction("body.data"),
	pathExtraction("data.rows"),
	pathExtraction("data.list"),
	pathExtraction("data.records"),
	pathExtraction("result.list"),
	pathExtraction("list"),
}

// ExtractRows tries each extraction in order; the first that accepts the
// payload wins. A payload that is not JSON or matches no shape reports false.
func ExtractRows(payload []byte, extractions []Extraction) ([]gjson.Result, bool) {
	if !gjson.ValidBytes(payload) {
		return nil, false
	}
	doc := gjson.ParseBytes(payload)
	for _, ex := range extractions {
		if rows, ok := ex.Extract(doc); ok {
			return rows, true
		}
	}
	return nil, false
}

func extractionsFor(rowsPath string) []Extraction {
	if rowsPath == "" {
		return DefaultExtractions
	}
	return append([]Extraction{pathExtraction(rowsPath)}, DefaultExtractions...)
}
