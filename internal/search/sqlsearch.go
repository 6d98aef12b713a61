package search

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"pedidos/api/internal/pedido"
)

// SQLSearch implements Searcher over the folded pedidos.busca column. It is
// the fallback whenever Meilisearch is absent or unhealthy, and works on
// both Postgres and SQLite.
type SQLSearch struct {
	db *sqlx.DB
}

func NewSQLSearch(db *sqlx.DB) *SQLSearch {
	return &SQLSearch{db: db}
}

// Healthy always returns true: without the database the whole API is down.
func (s *SQLSearch) Healthy() bool {
	return true
}

type sqlHit struct {
	ID           int64       `db:"id"`
	NumeroPedido string      `db:"numero_pedido"`
	Matricula    string      `db:"matricula"`
	DataPedido   pedido.Data `db:"data_pedido"`
	Nome         string      `db:"nome"`
}

// Search matches every folded term of q.Text as a substring of the stored
// search text, newest pedido first.
func (s *SQLSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(Fold(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "p.usuario_id = ?"
	args := []any{q.UsuarioID}
	for _, term := range terms {
		where += ` AND p.busca LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(term)+"%")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM pedidos p WHERE `+where), args...); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	var hits []sqlHit
	err := s.db.SelectContext(ctx, &hits, s.db.Rebind(`
		SELECT p.id, p.numero_pedido, p.matricula, p.data_pedido,
			COALESCE((SELECT pa.nome FROM participantes pa WHERE pa.pedido_id = p.id ORDER BY pa.posicao LIMIT 1), '') AS nome
		FROM pedidos p
		WHERE `+where+`
		ORDER BY p.id DESC
		LIMIT ? OFFSET ?
	`), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			PedidoID:     h.ID,
			NumeroPedido: h.NumeroPedido,
			Matricula:    h.Matricula,
			DataPedido:   h.DataPedido.String(),
			Snippet:      h.Nome,
		})
	}
	return results, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
