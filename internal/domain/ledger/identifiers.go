package ledger

import (
	"fmt"
	"strings"
)

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnCheck returns the expected check digit for payload (modulus 10).
func luhnCheck(payload string) int {
	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := int(payload[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

func luhnValid(number string) (bool, int) {
	expected := luhnCheck(number[:len(number)-1])
	return int(number[len(number)-1]-'0') == expected, expected
}

// ValidateOrgNumber checks a Swedish organisationsnummer (NNNNNN-NNNN).
func ValidateOrgNumber(orgNr string) ValidationResult {
	clean := digitsOnly(orgNr)
	if len(clean) != 10 {
		return ValidationResult{Field: "org_number", Message: "Organisationsnummer måste vara 10 siffror"}
	}
	if clean[0] == '0' {
		return ValidationResult{Field: "org_number", Message: "Organisationsnummer kan inte börja med 0"}
	}
	if ok, expected := luhnValid(clean); !ok {
		return ValidationResult{Field: "org_number",
			Message: fmt.Sprintf("Ogiltig kontrollsiffra (förväntat %d, fick %c)", expected, clean[9])}
	}
	return ValidationResult{Valid: true, Field: "org_number"}
}

// ValidateVATNumber checks SE + organisationsnummer + 01.
func ValidateVATNumber(vatNr string) ValidationResult {
	upper := strings.ToUpper(strings.TrimSpace(vatNr))
	if upper == "" {
		return ValidationResult{Field: "vat_number", Message: "VAT-nummer saknas"}
	}
	if !strings.HasPrefix(upper, "SE") {
		return ValidationResult{Field: "vat_number", Message: "Svenskt VAT-nummer måste börja med SE"}
	}
	digits := digitsOnly(upper)
	if len(digits) != 12 {
		return ValidationResult{Field: "vat_number",
			Message: fmt.Sprintf("VAT-nummer måste ha 12 siffror efter SE (fick %d)", len(digits))}
	}
	if res := ValidateOrgNumber(digits[:10]); !res.Valid {
		return ValidationResult{Field: "vat_number", Message: "Ogiltigt organisationsnummer i VAT: " + res.Message}
	}
	if digits[10:] != "01" {
		return ValidationResult{Field: "vat_number",
			Message: fmt.Sprintf("VAT-nummer ska sluta med 01 (fick %s)", digits[10:])}
	}
	return ValidationResult{Valid: true, Field: "vat_number"}
}

// ValidateBankgiro checks a 7-8 digit bankgiro number.
func ValidateBankgiro(bg string) ValidationResult {
	clean := digitsOnly(bg)
	if len(clean) < 7 || len(clean) > 8 {
		return ValidationResult{Field: "bankgiro", Message: "Bankgironummer måste vara 7-8 siffror"}
	}
	if ok, _ := luhnValid(clean); !ok {
		return ValidationResult{Field: "bankgiro", Message: "Ogiltig kontrollsiffra för bankgiro"}
	}
	return ValidationResult{Valid: true, Field: "bankgiro"}
}

// ValidatePlusgiro checks a 2-8 digit plusgiro number.
func ValidatePlusgiro(pg string) ValidationResult {
	clean := digitsOnly(pg)
	if len(clean) < 2 || len(clean) > 8 {
		return ValidationResult{Field: "plusgiro", Message: "Plusgironummer måste vara 2-8 siffror"}
	}
	if ok, _ := luhnValid(clean); !ok {
		return ValidationResult{Field: "plusgiro", Message: "Ogiltig kontrollsiffra för plusgiro"}
	}
	return ValidationResult{Valid: true, Field: "plusgiro"}
}

// ValidatePersonalNumber checks a personnummer in 10 or 12 digit form.
func ValidatePersonalNumber(pnr string) ValidationResult {
	clean := digitsOnly(pnr)
	if len(clean) == 12 {
		clean = clean[2:]
	}
	if len(clean) != 10 {
		return ValidationResult{Field: "personal_number", Message: "Personnummer måste vara 10 eller 12 siffror"}
	}
	month := int(clean[2]-'0')*10 + int(clean[3]-'0')
	day := int(clean[4]-'0')*10 + int(clean[5]-'0')
	if month < 1 || month > 12 {
		return ValidationResult{Field: "personal_number", Message: fmt.Sprintf("Ogiltig månad: %d", month)}
	}
	// Samordningsnummer add 60 to the day.
	if day > 60 {
		day -= 60
	}
	if day < 1 || day > 31 {
		return ValidationResult{Field: "personal_number", Message: fmt.Sprintf("Ogiltig dag: %d", day)}
	}
	if ok, _ := luhnValid(clean); !ok {
		return ValidationResult{Field: "personal_number", Message: "Ogiltig kontrollsiffra"}
	}
	return ValidationResult{Valid: true, Field: "personal_number"}
}
