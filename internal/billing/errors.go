package billing

import "errors"

var (
	// ErrInvoiceNotFound возвращается, если счёт с указанным идентификатором не найден.
	ErrInvoiceNotFound = errors.New("bill not found")
	// ErrInvalidAmount возвращается для отрицательных сумм.
	ErrInvalidAmount = errors.New("amount must not be negative")
	// ErrInvalidTaxRate возвращается для отрицательной налоговой ставки.
	ErrInvalidTaxRate = errors.New("tax rate must not be negative")
	// ErrInvalidStatus возвращается для неизвестного статуса оплаты.
	ErrInvalidStatus = errors.New("unknown payment status")
	// ErrInvoiceRefunded возвращается при попытке оплатить счёт, по которому уже сделан возврат.
	ErrInvoiceRefunded = errors.New("bill already refunded")
	// ErrInvalidTransition возвращается, если оплата вернула бы счёт в более ранний статус.
	ErrInvalidTransition = errors.New("payment status cannot move backwards")
	// ErrConcurrentUpdate возвращается, если счёт был изменён другим запросом между чтением и записью.
	ErrConcurrentUpdate = errors.New("bill was modified concurrently")
	// ErrInvalidPeriod возвращается, если начало периода отчёта позже его конца.
	ErrInvalidPeriod = errors.New("report period start is after end")
)
