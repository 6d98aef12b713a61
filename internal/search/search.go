package search

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pedidos/api/internal/pedido"
)

// Result is a single search hit returned to the caller.
type Result struct {
	PedidoID     int64  `json:"pedidoId"`
	NumeroPedido string `json:"numeroPedido"`
	Matricula    string `json:"matricula"`
	DataPedido   string `json:"dataPedido"`
	Snippet      string `json:"snippet"`
}

// Query describes a search request. UsuarioID scopes hits to one owner.
type Query struct {
	Text      string
	UsuarioID int64
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// PedidoRecord is the data we index for a pedido.
type PedidoRecord struct {
	ID             int64    `json:"id"`
	UsuarioID      int64    `json:"usuarioId"`
	NumeroPedido   string   `json:"numeroPedido"`
	Matricula      string   `json:"matricula"`
	DataPedido     string   `json:"dataPedido"`
	TipoCertidao   string   `json:"tipoCertidao"`
	CodigoCertidao string   `json:"codigoCertidao"`
	Participantes  []string `json:"participantes"`
	Documentos     []string `json:"documentos"`
	Protocolos     []string `json:"protocolos"`
}

// NewRecord flattens an aggregate into its index document.
func NewRecord(ownerID int64, agg pedido.Aggregate) PedidoRecord {
	rec := PedidoRecord{
		ID:             agg.Pedido.ID,
		UsuarioID:      ownerID,
		NumeroPedido:   agg.Pedido.NumeroPedido,
		Matricula:      agg.Pedido.Matricula,
		DataPedido:     agg.Pedido.DataPedido.String(),
		TipoCertidao:   string(agg.Pedido.TipoCertidao),
		CodigoCertidao: agg.Pedido.CodigoCertidao,
		Participantes:  []string{},
		Documentos:     []string{},
		Protocolos:     []string{},
	}
	for _, p := range agg.Participantes {
		rec.Participantes = append(rec.Participantes, p.Nome)
		if doc := p.Documento(); doc != "" {
			rec.Documentos = append(rec.Documentos, doc)
		}
	}
	for _, p := range agg.Protocolos {
		rec.Protocolos = append(rec.Protocolos, p.Observacao)
	}
	return rec
}

// Text builds the folded search text stored alongside a pedido.
func Text(in pedido.Input) string {
	parts := []string{in.NumeroPedido, in.Matricula, in.CodigoCertidao}
	for _, p := range in.Participantes {
		parts = append(parts, p.Nome, p.Documento())
	}
	for _, p := range in.Protocolos {
		parts = append(parts, p.Observacao)
	}
	return Fold(strings.Join(parts, " "))
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases s, strips diacritics and turns punctuation into single
// spaces, so "João  Silva-Neto" and "joao silva neto" compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(foldChain, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
