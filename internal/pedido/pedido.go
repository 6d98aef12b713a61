// Package pedido holds the pedido aggregate: the certificate request and its
// participantes and protocolos, which are always written together.
package pedido

import (
	"encoding/json"
	"time"
)

// Input is the full client payload for a create or a replacing update.
// Child IDs sent back by clients are ignored: children are replaced as a set.
type Input struct {
	NumeroPedido   string         `json:"numeroPedido" validate:"required,digits,max=20"`
	DataPedido     Data           `json:"dataPedido"`
	Matricula      string         `json:"matricula" validate:"required,digits,max=20"`
	ResultadoOnus  ResultadoOnus  `json:"resultadoOnus" validate:"omitempty,enum"`
	NumFolhas      int            `json:"numFolhas" validate:"gte=0,lte=9999"`
	NumImagens     int            `json:"numImagens" validate:"gte=0,lte=9999"`
	TipoCertidao   TipoCertidao   `json:"tipoCertidao" validate:"omitempty,enum"`
	CodigoCertidao string         `json:"codigoCertidao" validate:"max=60"`
	Participantes  []Participante `json:"participantes" validate:"max=200,dive"`
	Protocolos     []Protocolo    `json:"protocolos" validate:"max=200,dive"`
	// Versao, when set on an update, must match the stored version.
	Versao *int `json:"versao,omitempty" validate:"omitempty,gte=1"`
}

type Participante struct {
	ID                int64         `json:"id,omitempty"`
	Qualificacao      Qualificacao  `json:"qualificacao" validate:"required,enum"`
	Nome              string        `json:"nome" validate:"required,max=200"`
	TipoDocumento     TipoDocumento `json:"tipoDocumento" validate:"required,enum"`
	CPF               string        `json:"cpf"`
	CNPJ              string        `json:"cnpj"`
	Genero            Genero        `json:"genero" validate:"omitempty,enum"`
	Identidade        string        `json:"identidade" validate:"max=30"`
	OrgaoEmissor      OrgaoEmissor  `json:"orgaoEmissor" validate:"omitempty,enum"`
	OrgaoEmissorOutro string        `json:"orgaoEmissorOutro" validate:"max=60"`
	EstadoCivil       EstadoCivil   `json:"estadoCivil" validate:"omitempty,enum"`
}

// MarshalJSON renders CPF and CNPJ with their usual punctuation; storage
// keeps digits only.
func (p Participante) MarshalJSON() ([]byte, error) {
	type plain Participante
	out := plain(p)
	out.CPF = FormatCPF(p.CPF)
	out.CNPJ = FormatCNPJ(p.CNPJ)
	return json.Marshal(out)
}

type Protocolo struct {
	ID         int64  `json:"id,omitempty"`
	Observacao string `json:"observacao" validate:"required,max=2000"`
}

type Pedido struct {
	ID             int64         `json:"id"`
	NumeroPedido   string        `json:"numeroPedido"`
	DataPedido     Data          `json:"dataPedido"`
	Matricula      string        `json:"matricula"`
	ResultadoOnus  ResultadoOnus `json:"resultadoOnus"`
	NumFolhas      int           `json:"numFolhas"`
	NumImagens     int           `json:"numImagens"`
	TipoCertidao   TipoCertidao  `json:"tipoCertidao"`
	CodigoCertidao string        `json:"codigoCertidao"`
	Versao         int           `json:"versao"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Aggregate is a pedido with its complete child sets.
type Aggregate struct {
	Pedido        Pedido         `json:"pedido"`
	Participantes []Participante `json:"participantes"`
	Protocolos    []Protocolo    `json:"protocolos"`
}

// ListItem is the row shape returned by paginated listings.
type ListItem struct {
	Pedido
	ParticipantesCount int            `json:"participantesCount"`
	ProtocolosCount    int            `json:"protocolosCount"`
	Participantes      []Participante `json:"participantes"`
	Protocolos         []Protocolo    `json:"protocolos"`
}

// Input converts a stored aggregate back into a payload, which is how a
// client starts editing it.
func (a Aggregate) Input() Input {
	versao := a.Pedido.Versao
	in := Input{
		NumeroPedido:   a.Pedido.NumeroPedido,
		DataPedido:     a.Pedido.DataPedido,
		Matricula:      a.Pedido.Matricula,
		ResultadoOnus:  a.Pedido.ResultadoOnus,
		NumFolhas:      a.Pedido.NumFolhas,
		NumImagens:     a.Pedido.NumImagens,
		TipoCertidao:   a.Pedido.TipoCertidao,
		CodigoCertidao: a.Pedido.CodigoCertidao,
		Participantes:  append([]Participante{}, a.Participantes...),
		Protocolos:     append([]Protocolo{}, a.Protocolos...),
		Versao:         &versao,
	}
	return in
}
