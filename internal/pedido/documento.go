package pedido

import "strings"

const (
	cpfDigits  = 11
	cnpjDigits = 14
)

// OnlyDigits drops every rune that is not an ASCII digit.
func OnlyDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCPF renders 11 digits as 000.000.000-00. Other input is returned as is.
func FormatCPF(value string) string {
	if len(value) != cpfDigits || OnlyDigits(value) != value {
		return value
	}
	return value[0:3] + "." + value[3:6] + "." + value[6:9] + "-" + value[9:11]
}

// FormatCNPJ renders 14 digits as 00.000.000/0000-00. Other input is returned as is.
func FormatCNPJ(value string) string {
	if len(value) != cnpjDigits || OnlyDigits(value) != value {
		return value
	}
	return value[0:2] + "." + value[2:5] + "." + value[5:8] + "/" + value[8:12] + "-" + value[12:14]
}

// Documento returns the digits of whichever document tipoDocumento selects.
func (p Participante) Documento() string {
	if p.TipoDocumento == DocumentoCNPJ {
		return p.CNPJ
	}
	return p.CPF
}
