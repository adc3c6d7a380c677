/*
Copyright 2025 KCSC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Raw row statuses assigned at intake and consumed by the quality stage.
const (
	RowStatusNew       = "New"
	RowStatusDuplicate = "Duplicate"
	RowStatusLoaded    = "Loaded"
)

// Checked row statuses assigned by the quality stage.
const (
	CheckStatusQualityChecked = "Quality Checked"
	CheckStatusRejected       = "Rejected"
	CheckStatusDuplicate      = "Duplicate"
	CheckStatusSuccessful     = "Successful"
)

// Item line statuses assigned during aggregation.
const (
	ItemStatusChecked  = "Checked"
	ItemStatusRejected = "Rejected"
)

// Import document statuses. Draft is implicit in DocStatus; the business
// status below tracks where the document sits in the validation/submission
// flow. Duplicate, Successful and submitted Rejected are terminal.
const (
	DocStatusMasterDataChecked  = "Master Data Checked"
	DocStatusMasterDataRejected = "Master Data Rejected"
	DocStatusQualityRejected    = "Quality Rejected"
	DocStatusRejected           = "Rejected"
	DocStatusDuplicate          = "Duplicate"
	DocStatusSuccessful         = "Successful"
)

// Framework-level document states for produced accounting documents.
const (
	DocstatusDraft     = 0
	DocstatusSubmitted = 1
	DocstatusCancelled = 2
)

// Billing types carried on rows and documents. Anything that is not a
// return is treated as a forward sale.
const (
	BillingTypeSale   = "Sale"
	BillingTypeReturn = "Return"
)

// File and batch lifecycle statuses.
const (
	FileStatusReading    = "Reading"
	FileStatusProcessing = "Processing"
	FileStatusCompleted  = "Completed"
	FileStatusFailed     = "Failed"

	BatchStatusPending    = "Pending"
	BatchStatusProcessing = "Processing"
	BatchStatusCompleted  = "Completed"
	BatchStatusFailed     = "Failed"
)

// RawRow is one POS terminal line item exactly as received. Numeric-shaped
// fields stay strings until the quality stage has validated their shape;
// parsing them earlier would silently coerce garbage to zero.
type RawRow struct {
	RowID             int64  `json:"row_id"`
	BatchID           string `json:"batch_id"`
	InvoicePK         string `json:"invoice_pk"`
	MarketID          string `json:"market_id"`
	NielsenCode       string `json:"nielsen_code"`
	MarketDescription string `json:"market_description"`
	DateTimestamp     string `json:"date_timestamp"`
	Day               string `json:"day"`
	Year              string `json:"year"`
	ReceiptNo         string `json:"receipt_no"`
	PosNo             string `json:"pos_no"`
	ItemCode          string `json:"item_code"`
	Barcode           string `json:"barcode"`
	ItemDescription   string `json:"item_description"`
	SalesPrice        string `json:"sales_price"`
	Quantity          string `json:"quantity"`
	DiscountPercent   string `json:"discount_percent"`
	DiscountValue     string `json:"discount_value"`
	TotalPrice        string `json:"total_price"`
	InvoiceTotal      string `json:"invoice_total"`
	TotalQuantity     string `json:"total_quantity"`
	PaymentMethod     string `json:"payment_method"`
	DateDescription   string `json:"date_description"`
	BillingType       string `json:"billing_type"`
	Status            string `json:"status"`
}

// InvoiceKey returns the identifier grouping all rows of one receipt. An
// explicit pre-computed key from the terminal wins; otherwise the composite
// of market, terminal, year and receipt number is used.
func (r *RawRow) InvoiceKey() string {
	if r.InvoicePK != "" {
		return r.InvoicePK
	}
	return ComposeInvoiceKey(r.MarketID, r.PosNo, r.Year, r.ReceiptNo)
}

// ComposeInvoiceKey builds the composite invoice key from its parts.
func ComposeInvoiceKey(marketID, posNo, year, receiptNo string) string {
	return fmt.Sprintf("%s|%s|%s|%s", marketID, posNo, year, receiptNo)
}

// CheckedRow is one RawRow after structural validation. The mapping to its
// RawRow is 1:1 and never re-derived.
type CheckedRow struct {
	CheckID           int64  `json:"check_id"`
	RawRowID          int64  `json:"raw_row_id"`
	BatchID           string `json:"batch_id"`
	InvoicePK         string `json:"invoice_pk"`
	MarketID          string `json:"market_id"`
	NielsenCode       string `json:"nielsen_code"`
	MarketDescription string `json:"market_description"`
	DateTimestamp     string `json:"date_timestamp"`
	Day               string `json:"day"`
	Year              string `json:"year"`
	ReceiptNo         string `json:"receipt_no"`
	PosNo             string `json:"pos_no"`
	ItemCode          string `json:"item_code"`
	Barcode           string `json:"barcode"`
	ItemDescription   string `json:"item_description"`
	SalesPrice        string `json:"sales_price"`
	Quantity          string `json:"quantity"`
	DiscountPercent   string `json:"discount_percent"`
	DiscountValue     string `json:"discount_value"`
	TotalPrice        string `json:"total_price"`
	InvoiceTotal      string `json:"invoice_total"`
	TotalQuantity     string `json:"total_quantity"`
	PaymentMethod     string `json:"payment_method"`
	DateDescription   string `json:"date_description"`
	BillingType       string `json:"billing_type"`
	Status            string `json:"status"`
	RejectedReason    string `json:"rejected_reason"`
	Imported          bool   `json:"imported"`
}

// InvoiceKey mirrors RawRow.InvoiceKey for checked rows.
func (c *CheckedRow) InvoiceKey() string {
	if c.InvoicePK != "" {
		return c.InvoicePK
	}
	return ComposeInvoiceKey(c.MarketID, c.PosNo, c.Year, c.ReceiptNo)
}

// IsReturn reports whether the row belongs to a return/refund receipt.
func (c *CheckedRow) IsReturn() bool {
	return strings.EqualFold(strings.TrimSpace(c.BillingType), BillingTypeReturn) ||
		strings.EqualFold(strings.TrimSpace(c.BillingType), "Refund")
}

// ImportItem is one embedded item line of an import document, in receipt
// order.
type ImportItem struct {
	ItemID          string          `json:"item_id"`
	DocumentID      string          `json:"document_id"`
	Idx             int             `json:"idx"`
	CheckedRowID    int64           `json:"checked_row_id"`
	ItemCode        string          `json:"item_code"`
	ItemDescription string          `json:"item_description"`
	Barcode         string          `json:"barcode"`
	Quantity        decimal.Decimal `json:"quantity"`
	SalesPrice      decimal.Decimal `json:"sales_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountValue   decimal.Decimal `json:"discount_value"`
	Status          string          `json:"status"`
	RejectedReason  string          `json:"rejected_reason"`
}

// Amount is the line total used for invoice-level sums.
func (i *ImportItem) Amount() decimal.Decimal {
	return i.SalesPrice.Mul(i.Quantity)
}

// ImportDocument is the durable, versioned representation of one aggregate
// invoice. It owns exactly one invoice's data and is the unit of submission.
type ImportDocument struct {
	DocumentID        string          `json:"document_id"`
	BatchID           string          `json:"batch_id"`
	InvoiceKey        string          `json:"invoice_key"`
	MarketID          string          `json:"market_id"`
	MarketDescription string          `json:"market_description"`
	NielsenCode       string          `json:"nielsen_code"`
	PosNo             string          `json:"pos_no"`
	ReceiptNo         string          `json:"receipt_no"`
	POSProfile        string          `json:"pos_profile"`
	PostingDate       string          `json:"posting_date"`
	PostingTime       string          `json:"posting_time"`
	DeclaredTotal     decimal.Decimal `json:"invoice_total"`
	DeclaredQuantity  decimal.Decimal `json:"total_quantity"`
	ComputedTotal     decimal.Decimal `json:"invoice_amount"`
	ComputedQuantity  decimal.Decimal `json:"actual_quantity"`
	NetValue          decimal.Decimal `json:"net_value"`
	BillingType       string          `json:"billing_type"`
	PaymentMethod     string          `json:"payment_method"`
	Docstatus         int             `json:"docstatus"`
	Status            string          `json:"status"`
	RejectedReason    string          `json:"rejected_reason"`
	Items             []ImportItem    `json:"items"`
}

// IsReturn reports whether the document represents a return receipt.
func (d *ImportDocument) IsReturn() bool {
	return strings.EqualFold(strings.TrimSpace(d.BillingType), BillingTypeReturn) ||
		strings.EqualFold(strings.TrimSpace(d.BillingType), "Refund")
}

// Terminal reports whether the document has reached a state submission may
// not leave.
func (d *ImportDocument) Terminal() bool {
	switch d.Status {
	case DocStatusSuccessful, DocStatusDuplicate:
		return true
	case DocStatusRejected:
		return d.Docstatus == DocstatusSubmitted
	}
	return false
}

// CanTransition reports whether a document in the current status may move to
// the target status. Transitions are data, not framework callbacks: the
// submission loop computes the target and persists it as an explicit side
// effect.
func CanTransition(current, target string) bool {
	if current == target {
		return true
	}
	switch current {
	case "", DocStatusMasterDataChecked, DocStatusMasterDataRejected, DocStatusQualityRejected, DocStatusRejected:
		// Draft documents may be re-validated any number of times and may
		// reach any submission outcome.
		switch target {
		case DocStatusMasterDataChecked, DocStatusMasterDataRejected, DocStatusQualityRejected,
			DocStatusRejected, DocStatusDuplicate, DocStatusSuccessful:
			return true
		}
	}
	return false
}

// ActiveFile tracks one inbox file registered for splitting.
type ActiveFile struct {
	FileID            string `json:"file_id"`
	FileName          string `json:"file_name"`
	FilePath          string `json:"file_path"`
	BatchSize         int    `json:"batch_size"`
	Status            string `json:"status"`
	StatusDescription string `json:"status_description"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
}

// SplitFile tracks one invoice-coherent batch produced by the splitter.
type SplitFile struct {
	SplitID           string `json:"split_id"`
	ParentFileID      string `json:"parent_file_id"`
	FileName          string `json:"file_name"`
	FilePath          string `json:"file_path"`
	BatchNumber       int    `json:"batch_number"`
	TotalRecords      int    `json:"total_records"`
	Status            string `json:"status"`
	StatusDescription string `json:"status_description"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
}

// POSProfile is one registry entry mapping a terminal to the warehouse and
// customer its invoices post against.
type POSProfile struct {
	Name      string `json:"name"`
	Warehouse string `json:"warehouse"`
	Customer  string `json:"customer"`
}

// SalesInvoice is the accounting document produced on submission. Return
// documents set IsReturn and reference the original through ReturnAgainst.
type SalesInvoice struct {
	InvoiceID        string                `json:"invoice_id"`
	POSProfile       string                `json:"pos_profile"`
	Customer         string                `json:"customer"`
	Warehouse        string                `json:"warehouse"`
	PostingDate      string                `json:"posting_date"`
	PostingTime      string                `json:"posting_time"`
	ImportDocumentID string                `json:"import_document_id"`
	MarketID         string                `json:"market_id"`
	PosNo            string                `json:"pos_no"`
	ReceiptNo        string                `json:"receipt_no"`
	IsReturn         bool                  `json:"is_return"`
	ReturnAgainst    string                `json:"return_against"`
	Docstatus        int                   `json:"docstatus"`
	GrandTotal       decimal.Decimal       `json:"grand_total"`
	Items            []SalesInvoiceItem    `json:"items"`
	Payments         []SalesInvoicePayment `json:"payments"`
}

// SalesInvoiceItem is one line of a produced accounting document.
type SalesInvoiceItem struct {
	InvoiceID          string          `json:"invoice_id"`
	Idx                int             `json:"idx"`
	ItemCode           string          `json:"item_code"`
	Description        string          `json:"description"`
	Barcode            string          `json:"barcode"`
	Qty                decimal.Decimal `json:"qty"`
	Rate               decimal.Decimal `json:"rate"`
	PriceListRate      decimal.Decimal `json:"price_list_rate"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	CheckedRowID       int64           `json:"checked_row_id"`
}

// SalesInvoicePayment is one payment line of a produced accounting document.
type SalesInvoicePayment struct {
	InvoiceID     string          `json:"invoice_id"`
	ModeOfPayment string          `json:"mode_of_payment"`
	Amount        decimal.Decimal `json:"amount"`
}

// ComputeGrandTotal sums the item lines (qty * rate).
func (si *SalesInvoice) ComputeGrandTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range si.Items {
		total = total.Add(it.Qty.Mul(it.Rate))
	}
	return total
}

// POSProfileKey is the lookup key the profile registry is matched against:
// market description and terminal number joined the way profiles are named.
func POSProfileKey(marketDescription, posNo string) string {
	return fmt.Sprintf("%s-%s", marketDescription, posNo)
}

// GenerateUUIDWithSuffix generates a UUID with a given module name as a
// prefix, for context-specific identifiers.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// FormatDocumentID renders a sequential document identifier as the
// zero-padded 18-digit form used for import document names.
func FormatDocumentID(n int64) string {
	return fmt.Sprintf("%018d", n)
}

// ParseDecimal parses a numeric-shaped string, returning zero when the
// string does not parse. Callers run after the quality stage, where shape
// has already been validated; the zero fallback only covers empty optional
// fields.
func ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
