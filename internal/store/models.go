package store

import (
	"time"

	"pedidos/api/internal/pedido"
)

type Usuario struct {
	ID        int64     `db:"id"`
	Nome      string    `db:"nome"`
	Login     string    `db:"usuario"`
	SenhaHash string    `db:"senha_hash"`
	Papel     string    `db:"papel"`
	CreatedAt time.Time `db:"created_at"`
}

type pedidoRow struct {
	ID             int64       `db:"id"`
	NumeroPedido   string      `db:"numero_pedido"`
	DataPedido     pedido.Data `db:"data_pedido"`
	Matricula      string      `db:"matricula"`
	ResultadoOnus  string      `db:"resultado_onus"`
	NumFolhas      int         `db:"num_folhas"`
	NumImagens     int         `db:"num_imagens"`
	TipoCertidao   string      `db:"tipo_certidao"`
	CodigoCertidao string      `db:"codigo_certidao"`
	Versao         int         `db:"versao"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r pedidoRow) toPedido() pedido.Pedido {
	return pedido.Pedido{
		ID:             r.ID,
		NumeroPedido:   r.NumeroPedido,
		DataPedido:     r.DataPedido,
		Matricula:      r.Matricula,
		ResultadoOnus:  pedido.ResultadoOnus(r.ResultadoOnus),
		NumFolhas:      r.NumFolhas,
		NumImagens:     r.NumImagens,
		TipoCertidao:   pedido.TipoCertidao(r.TipoCertidao),
		CodigoCertidao: r.CodigoCertidao,
		Versao:         r.Versao,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type participanteRow struct {
	ID                int64  `db:"id"`
	PedidoID          int64  `db:"pedido_id"`
	Posicao           int    `db:"posicao"`
	Qualificacao      string `db:"qualificacao"`
	Nome              string `db:"nome"`
	TipoDocumento     string `db:"tipo_documento"`
	CPF               string `db:"cpf"`
	CNPJ              string `db:"cnpj"`
	Genero            string `db:"genero"`
	Identidade        string `db:"identidade"`
	OrgaoEmissor      string `db:"orgao_emissor"`
	OrgaoEmissorOutro string `db:"orgao_emissor_outro"`
	EstadoCivil       string `db:"estado_civil"`
}

func newParticipanteRow(pedidoID int64, posicao int, p pedido.Participante) participanteRow {
	return participanteRow{
		PedidoID:          pedidoID,
		Posicao:           posicao,
		Qualificacao:      string(p.Qualificacao),
		Nome:              p.Nome,
		TipoDocumento:     string(p.TipoDocumento),
		CPF:               p.CPF,
		CNPJ:              p.CNPJ,
		Genero:            string(p.Genero),
		Identidade:        p.Identidade,
		OrgaoEmissor:      string(p.OrgaoEmissor),
		OrgaoEmissorOutro: p.OrgaoEmissorOutro,
		EstadoCivil:       string(p.EstadoCivil),
	}
}

func (r participanteRow) toParticipante() pedido.Participante {
	return pedido.Participante{
		ID:                r.ID,
		Qualificacao:      pedido.Qualificacao(r.Qualificacao),
		Nome:              r.Nome,
		TipoDocumento:     pedido.TipoDocumento(r.TipoDocumento),
		CPF:               r.CPF,
		CNPJ:              r.CNPJ,
		Genero:            pedido.Genero(r.Genero),
		Identidade:        r.Identidade,
		OrgaoEmissor:      pedido.OrgaoEmissor(r.OrgaoEmissor),
		OrgaoEmissorOutro: r.OrgaoEmissorOutro,
		EstadoCivil:       pedido.EstadoCivil(r.EstadoCivil),
	}
}

type protocoloRow struct {
	ID         int64  `db:"id"`
	PedidoID   int64  `db:"pedido_id"`
	Posicao    int    `db:"posicao"`
	Observacao string `db:"observacao"`
}

func (r protocoloRow) toProtocolo() pedido.Protocolo {
	return pedido.Protocolo{ID: r.ID, Observacao: r.Observacao}
}
