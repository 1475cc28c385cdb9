// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"

	"github.com/google/uuid"
)

var invoiceNumberRe = regexp.MustCompile(`^INV-\d{8}-\d{4}$`)

// IsValidBillID проверяет, что идентификатор счёта является UUID.
func IsValidBillID(id string) bool {
	return uuid.Validate(id) == nil
}

// IsValidInvoiceNumber проверяет формат номера счёта INV-YYYYMMDD-NNNN.
func IsValidInvoiceNumber(number string) bool {
	return invoiceNumberRe.MatchString(number)
}
