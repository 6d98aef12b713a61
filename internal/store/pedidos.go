package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pedidos/api/internal/pagination"
	"pedidos/api/internal/pedido"
	"pedidos/api/internal/search"
)

const pedidoColumns = `id, numero_pedido, data_pedido, matricula, resultado_onus, num_folhas, num_imagens,
	tipo_certidao, codigo_certidao, versao, created_at, updated_at`

const participanteColumns = `id, pedido_id, posicao, qualificacao, nome, tipo_documento, cpf, cnpj, genero,
	identidade, orgao_emissor, orgao_emissor_outro, estado_civil`

const insertParticipantes = `
	INSERT INTO participantes (pedido_id, posicao, qualificacao, nome, tipo_documento, cpf, cnpj, genero,
		identidade, orgao_emissor, orgao_emissor_outro, estado_civil)
	VALUES (:pedido_id, :posicao, :qualificacao, :nome, :tipo_documento, :cpf, :cnpj, :genero,
		:identidade, :orgao_emissor, :orgao_emissor_outro, :estado_civil)
`

const insertProtocolos = `
	INSERT INTO protocolos (pedido_id, posicao, observacao)
	VALUES (:pedido_id, :posicao, :observacao)
`

// PedidoRepository persists pedido aggregates. Every write runs in a single
// transaction, so readers never see a pedido without its children or a mix
// of two submitted child sets.
type PedidoRepository struct {
	db *sqlx.DB
}

func NewPedidoRepository(db *sqlx.DB) *PedidoRepository {
	return &PedidoRepository{db: db}
}

type CreateResult struct {
	ID       int64
	Versao   int
	Replayed bool
}

// Create stores a new pedido with its children. A non-empty idempotencyKey
// makes retries with the same payload return the pedido created by the first
// attempt; a different payload under that key fails with
// *pedido.IdempotencyKeyReusedError.
func (r *PedidoRepository) Create(ctx context.Context, ownerID int64, in pedido.Input, idempotencyKey string) (CreateResult, error) {
	in, err := pedido.Prepare(in)
	if err != nil {
		return CreateResult{}, err
	}

	var hash string
	if idempotencyKey != "" {
		if hash, err = payloadHash(in); err != nil {
			return CreateResult{}, err
		}
		if record, ok, err := r.lookupIdempotent(ctx, ownerID, idempotencyKey); err != nil {
			return CreateResult{}, err
		} else if ok {
			return r.replay(ctx, ownerID, record, hash)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return CreateResult{}, &pedido.StorageError{Op: "begin create", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO pedidos (usuario_id, numero_pedido, data_pedido, matricula, resultado_onus,
			num_folhas, num_imagens, tipo_certidao, codigo_certidao, busca)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), ownerID, in.NumeroPedido, in.DataPedido, in.Matricula, string(in.ResultadoOnus),
		in.NumFolhas, in.NumImagens, string(in.TipoCertidao), in.CodigoCertidao, search.Text(in)).Scan(&id)
	if err != nil {
		return CreateResult{}, &pedido.StorageError{Op: "insert pedido", Err: err}
	}

	if idempotencyKey != "" {
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO idempotencia (usuario_id, chave, pedido_id, payload_hash) VALUES (?, ?, ?, ?)
			ON CONFLICT (usuario_id, chave) DO NOTHING
		`), ownerID, idempotencyKey, id, hash)
		if err != nil {
			return CreateResult{}, &pedido.StorageError{Op: "record idempotency key", Err: err}
		}
		if n, _ := result.RowsAffected(); n == 0 {
			// A concurrent request with the same key committed first.
			_ = tx.Rollback()
			existing, ok, err := r.lookupIdempotent(ctx, ownerID, idempotencyKey)
			if err != nil {
				return CreateResult{}, err
			}
			if !ok {
				return CreateResult{}, &pedido.StorageError{Op: "record idempotency key", Err: errors.New("key vanished after conflict")}
			}
			return r.replay(ctx, ownerID, existing, hash)
		}
	}

	if err := insertChildren(ctx, tx, id, in); err != nil {
		return CreateResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return CreateResult{}, &pedido.PartialWriteError{Err: err}
	}
	return CreateResult{ID: id, Versao: 1}, nil
}

// Get loads one pedido owned by ownerID. Pedidos of other owners are
// reported as missing.
func (r *PedidoRepository) Get(ctx context.Context, ownerID, id int64) (pedido.Aggregate, error) {
	tx, err := r.beginRead(ctx)
	if err != nil {
		return pedido.Aggregate{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var row pedidoRow
	err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+pedidoColumns+` FROM pedidos WHERE id = ? AND usuario_id = ?`), id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return pedido.Aggregate{}, pedido.ErrNotFound
	}
	if err != nil {
		return pedido.Aggregate{}, &pedido.StorageError{Op: "select pedido", Err: err}
	}

	participantes, protocolos, err := loadChildren(ctx, tx, []int64{id})
	if err != nil {
		return pedido.Aggregate{}, err
	}
	if err := tx.Commit(); err != nil {
		return pedido.Aggregate{}, &pedido.StorageError{Op: "commit read", Err: err}
	}

	return pedido.Aggregate{
		Pedido:        row.toPedido(),
		Participantes: nonNil(participantes[id]),
		Protocolos:    nonNil(protocolos[id]),
	}, nil
}

// Update replaces the scalar fields and both child sets of a pedido. The
// parent UPDATE takes the row lock first, so concurrent updates of the same
// pedido apply one full child set after the other. When in.Versao is set it
// must match the stored version.
func (r *PedidoRepository) Update(ctx context.Context, ownerID, id int64, in pedido.Input) (int, error) {
	in, err := pedido.Prepare(in)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &pedido.StorageError{Op: "begin update", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE pedidos SET numero_pedido = ?, data_pedido = ?, matricula = ?, resultado_onus = ?,
			num_folhas = ?, num_imagens = ?, tipo_certidao = ?, codigo_certidao = ?, busca = ?,
			versao = versao + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND usuario_id = ?`
	args := []any{in.NumeroPedido, in.DataPedido, in.Matricula, string(in.ResultadoOnus),
		in.NumFolhas, in.NumImagens, string(in.TipoCertidao), in.CodigoCertidao, search.Text(in), id, ownerID}
	if in.Versao != nil {
		query += ` AND versao = ?`
		args = append(args, *in.Versao)
	}
	query += ` RETURNING versao`

	var versao int
	err = tx.QueryRowxContext(ctx, tx.Rebind(query), args...).Scan(&versao)
	if errors.Is(err, sql.ErrNoRows) {
		if in.Versao != nil {
			exists, existsErr := ownedExists(ctx, tx, ownerID, id)
			if existsErr != nil {
				return 0, existsErr
			}
			if exists {
				return 0, pedido.ErrVersionConflict
			}
		}
		return 0, pedido.ErrNotFound
	}
	if err != nil {
		return 0, &pedido.StorageError{Op: "update pedido", Err: err}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM participantes WHERE pedido_id = ?`), id); err != nil {
		return 0, &pedido.StorageError{Op: "delete participantes", Err: err}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM protocolos WHERE pedido_id = ?`), id); err != nil {
		return 0, &pedido.StorageError{Op: "delete protocolos", Err: err}
	}
	if err := insertChildren(ctx, tx, id, in); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, &pedido.PartialWriteError{PedidoID: id, Err: err}
	}
	return versao, nil
}

// Delete removes a pedido; its children go with it through ON DELETE CASCADE.
func (r *PedidoRepository) Delete(ctx context.Context, ownerID, id int64) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM pedidos WHERE id = ? AND usuario_id = ?`), id, ownerID)
	if err != nil {
		return &pedido.StorageError{Op: "delete pedido", Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return &pedido.StorageError{Op: "delete pedido", Err: err}
	}
	if n == 0 {
		return pedido.ErrNotFound
	}
	return nil
}

// List returns one page of the owner's pedidos, newest first. The count and
// the window are read in the same transaction.
func (r *PedidoRepository) List(ctx context.Context, ownerID int64, params pagination.Params) (pagination.Page[pedido.ListItem], error) {
	tx, err := r.beginRead(ctx)
	if err != nil {
		return pagination.Page[pedido.ListItem]{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.GetContext(ctx, &total, tx.Rebind(`SELECT COUNT(*) FROM pedidos WHERE usuario_id = ?`), ownerID); err != nil {
		return pagination.Page[pedido.ListItem]{}, &pedido.StorageError{Op: "count pedidos", Err: err}
	}

	var rows []pedidoRow
	err = tx.SelectContext(ctx, &rows, tx.Rebind(`
		SELECT `+pedidoColumns+` FROM pedidos
		WHERE usuario_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`), ownerID, params.Limit, params.Offset())
	if err != nil {
		return pagination.Page[pedido.ListItem]{}, &pedido.StorageError{Op: "select pedidos", Err: err}
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	participantes, protocolos, err := loadChildren(ctx, tx, ids)
	if err != nil {
		return pagination.Page[pedido.ListItem]{}, err
	}
	if err := tx.Commit(); err != nil {
		return pagination.Page[pedido.ListItem]{}, &pedido.StorageError{Op: "commit read", Err: err}
	}

	items := make([]pedido.ListItem, 0, len(rows))
	for _, row := range rows {
		item := pedido.ListItem{
			Pedido:        row.toPedido(),
			Participantes: nonNil(participantes[row.ID]),
			Protocolos:    nonNil(protocolos[row.ID]),
		}
		item.ParticipantesCount = len(item.Participantes)
		item.ProtocolosCount = len(item.Protocolos)
		items = append(items, item)
	}
	return pagination.NewPage(items, total, params), nil
}

// OwnedAggregate pairs an aggregate with the usuario that owns it.
type OwnedAggregate struct {
	OwnerID   int64
	Aggregate pedido.Aggregate
}

// Each walks every stored pedido in id order, batchSize parents at a time.
// It serves maintenance jobs such as rebuilding the search index.
func (r *PedidoRepository) Each(ctx context.Context, batchSize int, fn func([]OwnedAggregate) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var after int64
	for {
		var rows []struct {
			pedidoRow
			UsuarioID int64 `db:"usuario_id"`
		}
		err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
			SELECT `+pedidoColumns+`, usuario_id FROM pedidos
			WHERE id > ?
			ORDER BY id
			LIMIT ?
		`), after, batchSize)
		if err != nil {
			return &pedido.StorageError{Op: "scan pedidos", Err: err}
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		tx, err := r.beginRead(ctx)
		if err != nil {
			return err
		}
		participantes, protocolos, err := loadChildren(ctx, tx, ids)
		_ = tx.Rollback()
		if err != nil {
			return err
		}

		batch := make([]OwnedAggregate, 0, len(rows))
		for _, row := range rows {
			batch = append(batch, OwnedAggregate{
				OwnerID: row.UsuarioID,
				Aggregate: pedido.Aggregate{
					Pedido:        row.toPedido(),
					Participantes: nonNil(participantes[row.ID]),
					Protocolos:    nonNil(protocolos[row.ID]),
				},
			})
		}
		if err := fn(batch); err != nil {
			return err
		}
		after = rows[len(rows)-1].ID
	}
}

func (r *PedidoRepository) beginRead(ctx context.Context) (*sqlx.Tx, error) {
	var opts *sql.TxOptions
	if DialectOf(r.db) == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, &pedido.StorageError{Op: "begin read", Err: err}
	}
	return tx, nil
}

type idempotencyRecord struct {
	PedidoID    int64  `db:"pedido_id"`
	PayloadHash string `db:"payload_hash"`
}

func (r *PedidoRepository) lookupIdempotent(ctx context.Context, ownerID int64, key string) (idempotencyRecord, bool, error) {
	var record idempotencyRecord
	err := r.db.GetContext(ctx, &record, r.db.Rebind(`
		SELECT pedido_id, payload_hash FROM idempotencia WHERE usuario_id = ? AND chave = ?
	`), ownerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return idempotencyRecord{}, false, nil
	}
	if err != nil {
		return idempotencyRecord{}, false, &pedido.StorageError{Op: "lookup idempotency key", Err: err}
	}
	return record, true, nil
}

// replay answers a repeated key. Records written before payload hashes were
// kept have an empty hash and always replay.
func (r *PedidoRepository) replay(ctx context.Context, ownerID int64, record idempotencyRecord, hash string) (CreateResult, error) {
	var versao int
	err := r.db.GetContext(ctx, &versao, r.db.Rebind(`SELECT versao FROM pedidos WHERE id = ? AND usuario_id = ?`), record.PedidoID, ownerID)
	if err != nil {
		return CreateResult{}, &pedido.StorageError{Op: "replay create", Err: err}
	}
	if record.PayloadHash != "" && record.PayloadHash != hash {
		return CreateResult{}, &pedido.IdempotencyKeyReusedError{PedidoID: record.PedidoID, Versao: versao}
	}
	return CreateResult{ID: record.PedidoID, Versao: versao, Replayed: true}, nil
}

// payloadHash fingerprints a normalized input, so formatting differences
// such as CPF punctuation do not count as a different payload.
func payloadHash(in pedido.Input) (string, error) {
	in.Versao = nil
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func ownedExists(ctx context.Context, tx *sqlx.Tx, ownerID, id int64) (bool, error) {
	var count int
	if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(1) FROM pedidos WHERE id = ? AND usuario_id = ?`), id, ownerID); err != nil {
		return false, &pedido.StorageError{Op: "check pedido", Err: err}
	}
	return count > 0, nil
}

func insertChildren(ctx context.Context, tx *sqlx.Tx, pedidoID int64, in pedido.Input) error {
	if len(in.Participantes) > 0 {
		rows := make([]participanteRow, 0, len(in.Participantes))
		for i, p := range in.Participantes {
			rows = append(rows, newParticipanteRow(pedidoID, i, p))
		}
		if _, err := tx.NamedExecContext(ctx, insertParticipantes, rows); err != nil {
			return &pedido.StorageError{Op: "insert participantes", Err: err}
		}
	}
	if len(in.Protocolos) > 0 {
		rows := make([]protocoloRow, 0, len(in.Protocolos))
		for i, p := range in.Protocolos {
			rows = append(rows, protocoloRow{PedidoID: pedidoID, Posicao: i, Observacao: p.Observacao})
		}
		if _, err := tx.NamedExecContext(ctx, insertProtocolos, rows); err != nil {
			return &pedido.StorageError{Op: "insert protocolos", Err: err}
		}
	}
	return nil
}

func loadChildren(ctx context.Context, tx *sqlx.Tx, ids []int64) (map[int64][]pedido.Participante, map[int64][]pedido.Protocolo, error) {
	participantes := make(map[int64][]pedido.Participante, len(ids))
	protocolos := make(map[int64][]pedido.Protocolo, len(ids))
	if len(ids) == 0 {
		return participantes, protocolos, nil
	}

	query, args, err := sqlx.In(`SELECT `+participanteColumns+` FROM participantes WHERE pedido_id IN (?) ORDER BY pedido_id, posicao`, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("build participantes query: %w", err)
	}
	var participanteRows []participanteRow
	if err := tx.SelectContext(ctx, &participanteRows, tx.Rebind(query), args...); err != nil {
		return nil, nil, &pedido.StorageError{Op: "select participantes", Err: err}
	}
	for _, row := range participanteRows {
		participantes[row.PedidoID] = append(participantes[row.PedidoID], row.toParticipante())
	}

	query, args, err = sqlx.In(`SELECT id, pedido_id, posicao, observacao FROM protocolos WHERE pedido_id IN (?) ORDER BY pedido_id, posicao`, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("build protocolos query: %w", err)
	}
	var protocoloRows []protocoloRow
	if err := tx.SelectContext(ctx, &protocoloRows, tx.Rebind(query), args...); err != nil {
		return nil, nil, &pedido.StorageError{Op: "select protocolos", Err: err}
	}
	for _, row := range protocoloRows {
		protocolos[row.PedidoID] = append(protocolos[row.PedidoID], row.toProtocolo())
	}
	return participantes, protocolos, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
