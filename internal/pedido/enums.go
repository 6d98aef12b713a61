package pedido

type ResultadoOnus string

const (
	OnusNegativa      ResultadoOnus = "NEGATIVA"
	OnusPositiva      ResultadoOnus = "POSITIVA"
	OnusIndeterminada ResultadoOnus = "INDETERMINADA"
)

func (r ResultadoOnus) Valid() bool {
	switch r {
	case OnusNegativa, OnusPositiva, OnusIndeterminada:
		return true
	}
	return false
}

type TipoCertidao string

const (
	CertidaoBalcao    TipoCertidao = "BALCÃO"
	CertidaoARIRJ     TipoCertidao = "ARIRJ"
	CertidaoECartorio TipoCertidao = "E-CARTÓRIO"
	CertidaoONR       TipoCertidao = "ONR"
)

func (t TipoCertidao) Valid() bool {
	switch t {
	case CertidaoBalcao, CertidaoARIRJ, CertidaoECartorio, CertidaoONR:
		return true
	}
	return false
}

// RequiresCodigo reports whether certificates of this type carry a
// codigoCertidao issued by the external channel.
func (t TipoCertidao) RequiresCodigo() bool {
	return t == CertidaoARIRJ || t == CertidaoECartorio
}

type TipoDocumento string

const (
	DocumentoCPF  TipoDocumento = "CPF"
	DocumentoCNPJ TipoDocumento = "CNPJ"
)

func (t TipoDocumento) Valid() bool {
	return t == DocumentoCPF || t == DocumentoCNPJ
}

type Qualificacao string

const (
	QualificacaoProprietario Qualificacao = "PROPRIETÁRIO"
	QualificacaoAdquirente   Qualificacao = "ADQUIRENTE"
	QualificacaoTransmitente Qualificacao = "TRANSMITENTE"
	QualificacaoCredor       Qualificacao = "CREDOR"
	QualificacaoDevedor      Qualificacao = "DEVEDOR"
	QualificacaoUsufrutuario Qualificacao = "USUFRUTUÁRIO"
	QualificacaoInteressado  Qualificacao = "INTERESSADO"
)

func (q Qualificacao) Valid() bool {
	switch q {
	case QualificacaoProprietario, QualificacaoAdquirente, QualificacaoTransmitente,
		QualificacaoCredor, QualificacaoDevedor, QualificacaoUsufrutuario, QualificacaoInteressado:
		return true
	}
	return false
}

type Genero string

const (
	GeneroMasculino Genero = "MASCULINO"
	GeneroFeminino  Genero = "FEMININO"
)

func (g Genero) Valid() bool {
	return g == GeneroMasculino || g == GeneroFeminino
}

type OrgaoEmissor string

const (
	OrgaoDetranRJ OrgaoEmissor = "DETRAN/RJ"
	OrgaoIFPRJ    OrgaoEmissor = "IFP/RJ"
	OrgaoSSP      OrgaoEmissor = "SSP"
	OrgaoPF       OrgaoEmissor = "PF"
	OrgaoOutro    OrgaoEmissor = "OUTRO"
)

func (o OrgaoEmissor) Valid() bool {
	switch o {
	case OrgaoDetranRJ, OrgaoIFPRJ, OrgaoSSP, OrgaoPF, OrgaoOutro:
		return true
	}
	return false
}

type EstadoCivil string

const (
	EstadoSolteiro     EstadoCivil = "SOLTEIRO"
	EstadoCasado       EstadoCivil = "CASADO"
	EstadoDivorciado   EstadoCivil = "DIVORCIADO"
	EstadoViuvo        EstadoCivil = "VIÚVO"
	EstadoSeparado     EstadoCivil = "SEPARADO"
	EstadoUniaoEstavel EstadoCivil = "UNIÃO ESTÁVEL"
)

func (e EstadoCivil) Valid() bool {
	switch e {
	case EstadoSolteiro, EstadoCasado, EstadoDivorciado, EstadoViuvo, EstadoSeparado, EstadoUniaoEstavel:
		return true
	}
	return false
}
