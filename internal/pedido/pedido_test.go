package pedido

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validInput() Input {
	return Input{
		NumeroPedido:   "12345",
		DataPedido:     NewData(2024, time.May, 2),
		Matricula:      "998877",
		ResultadoOnus:  OnusNegativa,
		NumFolhas:      3,
		NumImagens:     4,
		TipoCertidao:   CertidaoARIRJ,
		CodigoCertidao: "AR-2024-001",
		Participantes: []Participante{
			{
				Nome:          "maria da silva",
				TipoDocumento: DocumentoCPF,
				CPF:           "529.982.247-25",
				Genero:        GeneroFeminino,
				OrgaoEmissor:  OrgaoDetranRJ,
				EstadoCivil:   EstadoCasado,
			},
		},
		Protocolos: []Protocolo{{Observacao: "  primeira exigência  "}},
	}
}

func TestPrepareNormalizesPayload(t *testing.T) {
	in, err := Prepare(validInput())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	p := in.Participantes[0]
	if p.Nome != "MARIA DA SILVA" {
		t.Fatalf("expected upper-cased nome, got %q", p.Nome)
	}
	if p.CPF != "52998224725" {
		t.Fatalf("expected digits-only cpf, got %q", p.CPF)
	}
	if p.Qualificacao != QualificacaoProprietario {
		t.Fatalf("expected default qualificacao, got %q", p.Qualificacao)
	}
	if in.Protocolos[0].Observacao != "primeira exigência" {
		t.Fatalf("expected trimmed observacao, got %q", in.Protocolos[0].Observacao)
	}
}

func TestNormalizeComposesAccents(t *testing.T) {
	decomposed := "joa\u0303o"
	p := Participante{Nome: decomposed, TipoDocumento: DocumentoCPF}.Normalize()
	if p.Nome != "JOÃO" {
		t.Fatalf("expected precomposed JOÃO, got %q", p.Nome)
	}
}

func TestPrepareRejectsMissingRequiredFields(t *testing.T) {
	in := validInput()
	in.NumeroPedido = ""
	in.DataPedido = Data{}
	in.Matricula = "12a"

	_, err := Prepare(in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"numeroPedido", "dataPedido", "matricula"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected %s in validation fields, got %v", field, verr.Fields)
		}
	}
}

func TestPrepareRejectsEmptyProtocolo(t *testing.T) {
	in := validInput()
	in.Protocolos = append(in.Protocolos, Protocolo{Observacao: "   "})

	_, err := Prepare(in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["protocolos[1].observacao"]; !ok {
		t.Fatalf("expected protocolos[1].observacao, got %v", verr.Fields)
	}
}

func TestPrepareChecksDocumentLength(t *testing.T) {
	in := validInput()
	in.Participantes = append(in.Participantes, Participante{
		Nome:          "acme ltda",
		TipoDocumento: DocumentoCNPJ,
		CNPJ:          "11.222.333/0001",
	})

	_, err := Prepare(in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["participantes[1].cnpj"] != "must have 14 digits" {
		t.Fatalf("unexpected fields: %v", verr.Fields)
	}
}

func TestPrepareClearsFieldsOfOtherDocumentType(t *testing.T) {
	in := validInput()
	in.Participantes = []Participante{{
		Nome:          "acme ltda",
		TipoDocumento: DocumentoCNPJ,
		CNPJ:          "11.222.333/0001-81",
		CPF:           "529.982.247-25",
		Genero:        GeneroMasculino,
		EstadoCivil:   EstadoSolteiro,
	}}

	out, err := Prepare(in)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	p := out.Participantes[0]
	if p.CPF != "" || p.Genero != "" || p.EstadoCivil != "" {
		t.Fatalf("expected CPF-only fields cleared, got %+v", p)
	}
	if p.CNPJ != "11222333000181" {
		t.Fatalf("unexpected cnpj %q", p.CNPJ)
	}
}

func TestPrepareRequiresOrgaoEmissorOutroText(t *testing.T) {
	in := validInput()
	in.Participantes[0].OrgaoEmissor = OrgaoOutro

	_, err := Prepare(in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["participantes[0].orgaoEmissorOutro"]; !ok {
		t.Fatalf("unexpected fields: %v", verr.Fields)
	}
}

func TestCodigoCertidaoRules(t *testing.T) {
	in := validInput()
	in.CodigoCertidao = ""
	if _, err := Prepare(in); err == nil {
		t.Fatal("expected code-bearing tipo without codigo to fail")
	}

	in = validInput()
	in.TipoCertidao = CertidaoBalcao
	out, err := Prepare(in)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.CodigoCertidao != "" {
		t.Fatalf("expected codigoCertidao cleared for BALCÃO, got %q", out.CodigoCertidao)
	}
}

func TestPrepareRejectsUnknownEnum(t *testing.T) {
	in := validInput()
	in.ResultadoOnus = "TALVEZ"
	_, err := Prepare(in)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["resultadoOnus"] != "is not an accepted value" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParticipanteJSONFormatsDocuments(t *testing.T) {
	raw, err := json.Marshal(Participante{TipoDocumento: DocumentoCPF, CPF: "52998224725"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(raw), `"cpf":"529.982.247-25"`) {
		t.Fatalf("expected formatted cpf, got %s", raw)
	}
	if got := FormatCNPJ("11222333000181"); got != "11.222.333/0001-81" {
		t.Fatalf("FormatCNPJ() = %q", got)
	}
}

func TestDataRoundTrip(t *testing.T) {
	var d Data
	if err := json.Unmarshal([]byte(`"2024-02-29"`), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.String() != "2024-02-29" {
		t.Fatalf("unexpected date %q", d.String())
	}
	if err := json.Unmarshal([]byte(`"29/02/2024"`), &d); err == nil {
		t.Fatal("expected non ISO date to fail")
	}

	var scanned Data
	if err := scanned.Scan("2024-05-02 00:00:00+00:00"); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if scanned.String() != "2024-05-02" {
		t.Fatalf("unexpected scanned date %q", scanned.String())
	}
}
