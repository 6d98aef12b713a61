package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"pedidos/api/internal/pagination"
	"pedidos/api/internal/pedido"
)

var (
	// ErrNotEditing is returned by mutations and Submit when no draft is open.
	ErrNotEditing = errors.New("no pedido is being edited")
	// ErrBusy is returned while a submit is in flight.
	ErrBusy = errors.New("submit in progress")
	// ErrUnknownItem is returned for a participante or protocolo key that is
	// not part of the draft.
	ErrUnknownItem = errors.New("unknown draft item")
	// ErrSuperseded is returned by StartEdit when a later StartEdit or
	// StartCreate replaced the draft before the fetch completed.
	ErrSuperseded = errors.New("edit superseded by a newer one")
)

// API is the subset of Client the sync state drives.
type API interface {
	List(ctx context.Context, page, limit int) (pagination.Page[pedido.ListItem], error)
	Get(ctx context.Context, id int64) (pedido.Aggregate, error)
	Create(ctx context.Context, in pedido.Input, idempotencyKey string) (CreateResult, error)
	Update(ctx context.Context, id int64, in pedido.Input, versao int) (int, error)
	Delete(ctx context.Context, id int64) error
}

type State int

const (
	StateIdle State = iota
	StateEditing
	StateSubmitting
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

type Mode int

const (
	ModeNone Mode = iota
	ModeCreate
	ModeEdit
)

// ParticipanteDraft carries a client-side key that stays stable while the
// list is reordered or items are removed. Server ids are never used.
type ParticipanteDraft struct {
	Key          string
	Participante pedido.Participante
}

type ProtocoloDraft struct {
	Key        string
	Observacao string
}

// Draft is a copy of the scratch aggregate.
type Draft struct {
	Mode          Mode
	PedidoID      int64
	Versao        int
	Fields        pedido.Input
	Participantes []ParticipanteDraft
	Protocolos    []ProtocoloDraft
}

// SyncState holds the listing a front end shows and at most one draft
// being edited. The draft is only ever sent whole: Submit creates or
// replaces the entire aggregate.
type SyncState struct {
	mu    sync.Mutex
	api   API
	limit int

	state          State
	err            error
	mode           Mode
	pedidoID       int64
	versao         int
	fields         pedido.Input
	participantes  []ParticipanteDraft
	protocolos     []ProtocoloDraft
	idempotencyKey string
	fetchSeq       uint64

	page    pagination.Page[pedido.ListItem]
	pageNum int
	pageErr error
}

func NewSyncState(api API, limit int) *SyncState {
	return &SyncState{api: api, limit: limit, pageNum: 1}
}

// LoadPage fetches one page of the listing. On failure the previous page is
// kept and the error is available from PageErr.
func (s *SyncState) LoadPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	result, err := s.api.List(ctx, page, s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.pageErr = err
		return err
	}
	s.page = result
	s.pageNum = page
	s.pageErr = nil
	return nil
}

// StartCreate opens an empty draft with a fresh idempotency key.
func (s *SyncState) StartCreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrBusy
	}
	s.fetchSeq++
	s.reset()
	s.mode = ModeCreate
	s.idempotencyKey = uuid.NewString()
	s.state = StateEditing
	return nil
}

// StartEdit loads the stored aggregate verbatim into the draft, replacing
// whatever was there. When two StartEdit calls overlap the later one wins.
// A failed fetch leaves the state untouched and records the error.
func (s *SyncState) StartEdit(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	agg, err := s.api.Get(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.fetchSeq || s.state == StateSubmitting {
		return ErrSuperseded
	}
	if err != nil {
		s.err = err
		return err
	}

	s.reset()
	s.mode = ModeEdit
	s.pedidoID = agg.Pedido.ID
	s.versao = agg.Pedido.Versao
	s.fields = agg.Input()
	for _, p := range s.fields.Participantes {
		p.ID = 0
		s.participantes = append(s.participantes, ParticipanteDraft{Key: uuid.NewString(), Participante: p})
	}
	for _, p := range s.fields.Protocolos {
		s.protocolos = append(s.protocolos, ProtocoloDraft{Key: uuid.NewString(), Observacao: p.Observacao})
	}
	s.fields.Participantes = nil
	s.fields.Protocolos = nil
	s.fields.Versao = nil
	s.state = StateEditing
	return nil
}

// Cancel drops the draft.
func (s *SyncState) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrBusy
	}
	s.fetchSeq++
	s.reset()
	return nil
}

// EditFields applies fn to the pedido-level fields of the draft. Changes fn
// makes to children or versao are discarded.
func (s *SyncState) EditFields(fn func(*pedido.Input)) error {
	return s.mutate(func() error {
		fields := s.fields
		fn(&fields)
		fields.Participantes = nil
		fields.Protocolos = nil
		fields.Versao = nil
		s.fields = fields
		return nil
	})
}

// SetTipoCertidao also clears codigoCertidao when the new type has none.
func (s *SyncState) SetTipoCertidao(tipo pedido.TipoCertidao) error {
	return s.mutate(func() error {
		s.fields.TipoCertidao = tipo
		if !tipo.RequiresCodigo() {
			s.fields.CodigoCertidao = ""
		}
		return nil
	})
}

// AddParticipante appends p and returns its draft key.
func (s *SyncState) AddParticipante(p pedido.Participante) (string, error) {
	key := uuid.NewString()
	err := s.mutate(func() error {
		p.ID = 0
		s.participantes = append(s.participantes, ParticipanteDraft{Key: key, Participante: p})
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *SyncState) UpdateParticipante(key string, p pedido.Participante) error {
	return s.mutate(func() error {
		i := s.participanteIndex(key)
		if i < 0 {
			return ErrUnknownItem
		}
		p.ID = 0
		s.participantes[i].Participante = p
		return nil
	})
}

func (s *SyncState) RemoveParticipante(key string) error {
	return s.mutate(func() error {
		i := s.participanteIndex(key)
		if i < 0 {
			return ErrUnknownItem
		}
		s.participantes = append(s.participantes[:i:i], s.participantes[i+1:]...)
		return nil
	})
}

// SetTipoDocumento switches a participante between CPF and CNPJ and clears
// the fields that only the previous type uses.
func (s *SyncState) SetTipoDocumento(key string, tipo pedido.TipoDocumento) error {
	return s.mutate(func() error {
		i := s.participanteIndex(key)
		if i < 0 {
			return ErrUnknownItem
		}
		p := &s.participantes[i].Participante
		p.TipoDocumento = tipo
		switch tipo {
		case pedido.DocumentoCPF:
			p.CNPJ = ""
		case pedido.DocumentoCNPJ:
			p.CPF = ""
			p.Genero = ""
			p.Identidade = ""
			p.OrgaoEmissor = ""
			p.OrgaoEmissorOutro = ""
			p.EstadoCivil = ""
		}
		return nil
	})
}

// AddProtocolo appends a protocolo and returns its draft key.
func (s *SyncState) AddProtocolo(observacao string) (string, error) {
	key := uuid.NewString()
	err := s.mutate(func() error {
		s.protocolos = append(s.protocolos, ProtocoloDraft{Key: key, Observacao: observacao})
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *SyncState) UpdateProtocolo(key, observacao string) error {
	return s.mutate(func() error {
		i := s.protocoloIndex(key)
		if i < 0 {
			return ErrUnknownItem
		}
		s.protocolos[i].Observacao = observacao
		return nil
	})
}

func (s *SyncState) RemoveProtocolo(key string) error {
	return s.mutate(func() error {
		i := s.protocoloIndex(key)
		if i < 0 {
			return ErrUnknownItem
		}
		s.protocolos = append(s.protocolos[:i:i], s.protocolos[i+1:]...)
		return nil
	})
}

// Submit sends the whole draft as one create or update. On success the draft
// is cleared and the current page is fetched again; a failed refetch only
// shows up in PageErr. On failure the draft is kept so the caller can fix
// it and submit again with the same idempotency key. When the server reports
// that key as already used by an edited payload, the draft switches to
// editing the pedido that key created.
func (s *SyncState) Submit(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return ErrBusy
	case StateEditing, StateError:
	default:
		s.mu.Unlock()
		return ErrNotEditing
	}
	in := s.input()
	mode, id, versao, key := s.mode, s.pedidoID, s.versao, s.idempotencyKey
	s.state = StateSubmitting
	s.err = nil
	s.mu.Unlock()

	var err error
	switch mode {
	case ModeCreate:
		_, err = s.api.Create(ctx, in, key)
	case ModeEdit:
		_, err = s.api.Update(ctx, id, in, versao)
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateError
		s.err = err
		if id, v, ok := ReusedKey(err); ok && mode == ModeCreate && s.mode == ModeCreate {
			// An earlier attempt was stored even though its response was
			// lost. The draft now edits that pedido, so submitting again
			// applies the changes instead of dropping them.
			s.mode = ModeEdit
			s.pedidoID = id
			s.versao = v
			s.idempotencyKey = ""
		}
		s.mu.Unlock()
		return err
	}
	s.reset()
	page := s.pageNum
	s.mu.Unlock()

	_ = s.LoadPage(ctx, page)
	return nil
}

// Delete removes a pedido and refreshes the current page. Deleting the
// pedido being edited also drops the draft.
func (s *SyncState) Delete(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	if s.mode == ModeEdit && s.pedidoID == id && s.state != StateSubmitting {
		s.fetchSeq++
		s.reset()
	}
	page := s.pageNum
	s.mu.Unlock()

	_ = s.LoadPage(ctx, page)
	return nil
}

func (s *SyncState) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the last StartEdit or Submit failure.
func (s *SyncState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SyncState) Page() pagination.Page[pedido.ListItem] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *SyncState) PageErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageErr
}

func (s *SyncState) IdempotencyKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idempotencyKey
}

func (s *SyncState) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Draft{
		Mode:          s.mode,
		PedidoID:      s.pedidoID,
		Versao:        s.versao,
		Fields:        s.fields,
		Participantes: append([]ParticipanteDraft(nil), s.participantes...),
		Protocolos:    append([]ProtocoloDraft(nil), s.protocolos...),
	}
}

// mutate runs fn under the lock once a draft is open. Editing after a failed
// submit goes back to StateEditing.
func (s *SyncState) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSubmitting:
		return ErrBusy
	case StateEditing, StateError:
	default:
		return ErrNotEditing
	}
	if err := fn(); err != nil {
		return err
	}
	s.state = StateEditing
	return nil
}

func (s *SyncState) input() pedido.Input {
	in := s.fields
	in.Participantes = make([]pedido.Participante, 0, len(s.participantes))
	for _, p := range s.participantes {
		in.Participantes = append(in.Participantes, p.Participante)
	}
	in.Protocolos = make([]pedido.Protocolo, 0, len(s.protocolos))
	for _, p := range s.protocolos {
		in.Protocolos = append(in.Protocolos, pedido.Protocolo{Observacao: p.Observacao})
	}
	return in
}

func (s *SyncState) reset() {
	s.state = StateIdle
	s.err = nil
	s.mode = ModeNone
	s.pedidoID = 0
	s.versao = 0
	s.fields = pedido.Input{}
	s.participantes = nil
	s.protocolos = nil
	s.idempotencyKey = ""
}

func (s *SyncState) participanteIndex(key string) int {
	for i, p := range s.participantes {
		if p.Key == key {
			return i
		}
	}
	return -1
}

func (s *SyncState) protocoloIndex(key string) int {
	for i, p := range s.protocolos {
		if p.Key == key {
			return i
		}
	}
	return -1
}
