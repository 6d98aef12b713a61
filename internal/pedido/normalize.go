package pedido

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns a copy with whitespace trimmed, names and enum values
// upper-cased in NFC, document numbers reduced to digits and every field that
// does not apply to the selected tipoDocumento or tipoCertidao cleared.
func (in Input) Normalize() Input {
	out := in
	out.NumeroPedido = strings.TrimSpace(in.NumeroPedido)
	out.Matricula = strings.TrimSpace(in.Matricula)
	out.ResultadoOnus = ResultadoOnus(upper(string(in.ResultadoOnus)))
	out.TipoCertidao = TipoCertidao(upper(string(in.TipoCertidao)))
	out.CodigoCertidao = strings.TrimSpace(in.CodigoCertidao)
	if !out.TipoCertidao.RequiresCodigo() {
		out.CodigoCertidao = ""
	}

	out.Participantes = make([]Participante, 0, len(in.Participantes))
	for _, p := range in.Participantes {
		out.Participantes = append(out.Participantes, p.Normalize())
	}
	out.Protocolos = make([]Protocolo, 0, len(in.Protocolos))
	for _, p := range in.Protocolos {
		out.Protocolos = append(out.Protocolos, Protocolo{Observacao: strings.TrimSpace(p.Observacao)})
	}
	return out
}

func (p Participante) Normalize() Participante {
	out := Participante{
		Qualificacao:  Qualificacao(upper(string(p.Qualificacao))),
		Nome:          upper(p.Nome),
		TipoDocumento: TipoDocumento(upper(string(p.TipoDocumento))),
	}
	if out.Qualificacao == "" {
		out.Qualificacao = QualificacaoProprietario
	}
	switch out.TipoDocumento {
	case DocumentoCPF:
		out.CPF = OnlyDigits(p.CPF)
		out.Genero = Genero(upper(string(p.Genero)))
		out.Identidade = strings.TrimSpace(p.Identidade)
		out.OrgaoEmissor = OrgaoEmissor(upper(string(p.OrgaoEmissor)))
		if out.OrgaoEmissor == OrgaoOutro {
			out.OrgaoEmissorOutro = upper(p.OrgaoEmissorOutro)
		}
		out.EstadoCivil = EstadoCivil(upper(string(p.EstadoCivil)))
	case DocumentoCNPJ:
		out.CNPJ = OnlyDigits(p.CNPJ)
	}
	return out
}

// upper collapses whitespace, composes to NFC and upper-cases with Portuguese
// rules, so decomposed and precomposed accents compare equal after saving.
func upper(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return ""
	}
	return norm.NFC.String(cases.Upper(language.BrazilianPortuguese).String(norm.NFC.String(value)))
}
