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

package posbridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/model"
)

// SubmissionResult tallies one submission pass.
type SubmissionResult struct {
	Processed []string
	Failed    []string
}

// SubmitDocuments runs the submission loop over every draft document that
// passed master data checks: forward sales first, then returns, each
// partition in strict posting date/time order so an original is always
// finalized before the return that mirrors it. One document's failure never
// aborts its siblings.
//
// The drain is global, not batch-scoped: duplicate resolution reads sibling
// documents from other batches, so exactly one submitter may run at a time.
// The batch worker enforces that with single-worker concurrency.
func (p *Posbridge) SubmitDocuments(ctx context.Context) (*SubmissionResult, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	docs, err := p.datasource.GetSubmittableDocuments(ctx)
	if err != nil {
		return nil, err
	}

	sales := []*model.ImportDocument{}
	returns := []*model.ImportDocument{}
	for _, doc := range docs {
		if doc.IsReturn() {
			returns = append(returns, doc)
		} else {
			sales = append(sales, doc)
		}
	}

	result := &SubmissionResult{}
	refs, err := p.loadSubmissionReferenceData(ctx, docs)
	if err != nil {
		return nil, err
	}
	for i, doc := range append(sales, returns...) {
		if err := p.submitDocument(ctx, doc, refs); err != nil {
			logrus.WithError(err).Errorf("submission of document %s failed", doc.DocumentID)
			result.Failed = append(result.Failed, doc.DocumentID)
			continue
		}
		result.Processed = append(result.Processed, doc.DocumentID)
		// Every status transition commits on its own; the interval just
		// bounds how often progress is logged for long passes.
		if (i+1)%cfg.Staging.DocumentCommitInterval == 0 {
			logrus.Infof("submission progress: %d documents", i+1)
		}
	}
	return result, nil
}

func (p *Posbridge) loadSubmissionReferenceData(ctx context.Context, docs []*model.ImportDocument) (*referenceData, error) {
	codeSet := map[string]bool{}
	codes := []string{}
	methodSet := map[string]bool{}
	methods := []string{}
	for _, doc := range docs {
		for _, item := range doc.Items {
			if code := strings.TrimSpace(item.ItemCode); code != "" && !codeSet[code] {
				codeSet[code] = true
				codes = append(codes, code)
			}
		}
		if method := strings.TrimSpace(doc.PaymentMethod); method != "" && !methodSet[method] {
			methodSet[method] = true
			methods = append(methods, method)
		}
	}
	itemExists, err := p.datasource.ItemCodesExist(ctx, codes)
	if err != nil {
		return nil, err
	}
	paymentExists, err := p.datasource.PaymentMethodsExist(ctx, methods)
	if err != nil {
		return nil, err
	}
	profiles, err := p.loadProfileRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return &referenceData{itemExists: itemExists, paymentExists: paymentExists, profiles: profiles}, nil
}

// submitDocument drives one document through validate → duplicate check →
// gate → accounting submission. Expected business outcomes (duplicate,
// rejection) are persisted statuses, not errors; an error return means the
// document failed in a way the caller should count.
func (p *Posbridge) submitDocument(ctx context.Context, doc *model.ImportDocument, refs *referenceData) error {
	// Validation is re-derived at submit time: reference data may have
	// changed since aggregation.
	p.revalidateDocument(doc, refs)

	duplicate, err := p.resolveDuplicates(ctx, doc)
	if err != nil {
		return err
	}
	if duplicate {
		return nil
	}

	if doc.Status != model.DocStatusMasterDataChecked || rejectedItemCount(doc) > 0 {
		// The rejection must survive whatever happens to the rest of the
		// pass, so it is persisted immediately as its own commit.
		reason := doc.RejectedReason
		if reason == "" {
			reason = "Document has rejected items"
		}
		return p.transition(ctx, doc, model.DocStatusRejected, reason)
	}

	var invoice *model.SalesInvoice
	if doc.IsReturn() {
		invoice, err = p.buildReturnInvoice(ctx, doc)
	} else {
		invoice, err = p.buildSaleInvoice(ctx, doc)
	}
	if err != nil {
		return p.recordSubmissionFailure(ctx, doc, err)
	}

	if err := p.datasource.InsertSalesInvoice(ctx, invoice); err != nil {
		return p.recordSubmissionFailure(ctx, doc, err)
	}
	if err := p.datasource.SubmitSalesInvoice(ctx, invoice.InvoiceID); err != nil {
		return p.recordSubmissionFailure(ctx, doc, err)
	}

	if err := p.datasource.SetImportDocumentDocstatus(ctx, doc.DocumentID, model.DocstatusSubmitted); err != nil {
		return p.recordSubmissionFailure(ctx, doc, err)
	}
	doc.Docstatus = model.DocstatusSubmitted
	if err := p.transition(ctx, doc, model.DocStatusSuccessful, ""); err != nil {
		return p.recordSubmissionFailure(ctx, doc, err)
	}

	// Traceability on the staging side is best effort: a failed row update
	// is logged, never fatal.
	for _, item := range doc.Items {
		if err := p.datasource.UpdateCheckedRowStatus(ctx, item.CheckedRowID, model.CheckStatusSuccessful); err != nil {
			logrus.WithError(err).Warnf("failed to mark checked row %d successful", item.CheckedRowID)
		}
	}
	return nil
}

// revalidateDocument recomputes the master data checks against the current
// reference snapshot and updates the in-memory status and reason.
func (p *Posbridge) revalidateDocument(doc *model.ImportDocument, refs *referenceData) {
	if doc.Status == model.DocStatusQualityRejected {
		return
	}
	itemReasons := []string{}
	for i := range doc.Items {
		item := &doc.Items[i]
		if refs.itemExists[strings.TrimSpace(item.ItemCode)] {
			item.Status = model.ItemStatusChecked
			item.RejectedReason = ""
		} else {
			item.Status = model.ItemStatusRejected
			item.RejectedReason = fmt.Sprintf("%d- Item code not found in Item", item.Idx)
			itemReasons = append(itemReasons, item.RejectedReason)
		}
	}

	profileKey := model.POSProfileKey(doc.MarketDescription, doc.PosNo)
	profile, profileFound := refs.resolveProfile(profileKey)
	if profileFound {
		doc.POSProfile = profile.Name
	}
	paymentFound := refs.paymentExists[strings.TrimSpace(doc.PaymentMethod)]

	reasons := []string{}
	reasons = append(reasons, itemReasons...)
	if !profileFound {
		reasons = append(reasons, fmt.Sprintf("POS profile not found: %s", profileKey))
	}
	if !paymentFound {
		reasons = append(reasons, fmt.Sprintf("Payment method not found: %s", doc.PaymentMethod))
	}
	if doc.DeclaredTotal.Sub(doc.ComputedTotal).Abs().GreaterThan(totalsTolerance) {
		reasons = append(reasons, fmt.Sprintf("Invoice amount mismatch: %s vs %s", doc.DeclaredTotal, doc.ComputedTotal))
	}
	if !doc.DeclaredQuantity.Equal(doc.ComputedQuantity) {
		reasons = append(reasons, fmt.Sprintf("Quantity mismatch: %s vs %s", doc.DeclaredQuantity, doc.ComputedQuantity))
	}

	if len(reasons) > 0 {
		doc.Status = model.DocStatusMasterDataRejected
		doc.RejectedReason = strings.Join(reasons, ", ")
	} else {
		doc.Status = model.DocStatusMasterDataChecked
		doc.RejectedReason = ""
	}
}

// resolveDuplicates applies the duplicate precedence rules across every
// document sharing this invoice key, regardless of batch. A terminal
// Successful sibling wins: this document becomes the Duplicate. Otherwise
// this submission supersedes any unsubmitted sibling, flipping it to
// Duplicate. Returns true when this document was resolved as the duplicate.
func (p *Posbridge) resolveDuplicates(ctx context.Context, doc *model.ImportDocument) (bool, error) {
	siblings, err := p.datasource.GetDocumentsByInvoiceKey(ctx, doc.InvoiceKey)
	if err != nil {
		return false, err
	}
	for _, sibling := range siblings {
		if sibling.DocumentID == doc.DocumentID {
			continue
		}
		if sibling.Status == model.DocStatusSuccessful {
			reason := fmt.Sprintf("Duplicate of %s", sibling.DocumentID)
			if err := p.transition(ctx, doc, model.DocStatusDuplicate, reason); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	for _, sibling := range siblings {
		if sibling.DocumentID == doc.DocumentID || sibling.Terminal() || sibling.Docstatus != model.DocstatusDraft {
			continue
		}
		reason := fmt.Sprintf("Superseded by %s", doc.DocumentID)
		if err := p.datasource.UpdateImportDocumentStatus(ctx, sibling.DocumentID, model.DocStatusDuplicate, reason); err != nil {
			return false, err
		}
	}
	return false, nil
}

// transition persists a state change, refusing edges the state machine does
// not define.
func (p *Posbridge) transition(ctx context.Context, doc *model.ImportDocument, target, reason string) error {
	if !model.CanTransition(doc.Status, target) {
		return fmt.Errorf("document %s cannot move from %s to %s", doc.DocumentID, doc.Status, target)
	}
	if err := p.datasource.UpdateImportDocumentStatus(ctx, doc.DocumentID, target, reason); err != nil {
		return err
	}
	doc.Status = target
	doc.RejectedReason = reason
	return nil
}

// recordSubmissionFailure rejects the document with the underlying error.
// The error is re-raised only when the document had already been finalized
// at the framework level; everything earlier is recorded and swallowed so
// the pass continues with the next document.
func (p *Posbridge) recordSubmissionFailure(ctx context.Context, doc *model.ImportDocument, cause error) error {
	if err := p.datasource.UpdateImportDocumentStatus(ctx, doc.DocumentID, model.DocStatusRejected, cause.Error()); err != nil {
		logrus.WithError(err).Errorf("failed to record rejection on document %s", doc.DocumentID)
	}
	if doc.Docstatus == model.DocstatusSubmitted {
		return cause
	}
	logrus.WithError(cause).Warnf("document %s rejected during submission", doc.DocumentID)
	return nil
}

// buildSaleInvoice maps a forward-sale import document onto a draft
// accounting invoice.
func (p *Posbridge) buildSaleInvoice(ctx context.Context, doc *model.ImportDocument) (*model.SalesInvoice, error) {
	profile, err := p.datasource.GetPOSProfile(ctx, doc.POSProfile)
	if err != nil {
		return nil, err
	}
	invoice := &model.SalesInvoice{
		InvoiceID:        model.GenerateUUIDWithSuffix("siv"),
		POSProfile:       profile.Name,
		Customer:         profile.Customer,
		Warehouse:        profile.Warehouse,
		PostingDate:      doc.PostingDate,
		PostingTime:      doc.PostingTime,
		ImportDocumentID: doc.DocumentID,
		MarketID:         doc.MarketID,
		PosNo:            doc.PosNo,
		ReceiptNo:        doc.ReceiptNo,
		Docstatus:        model.DocstatusDraft,
	}
	for _, item := range doc.Items {
		rate := lineRate(item)
		invoice.Items = append(invoice.Items, model.SalesInvoiceItem{
			InvoiceID:          invoice.InvoiceID,
			Idx:                item.Idx,
			ItemCode:           item.ItemCode,
			Description:        item.ItemDescription,
			Barcode:            item.Barcode,
			Qty:                item.Quantity,
			Rate:               rate,
			PriceListRate:      rate.Add(item.DiscountValue),
			DiscountPercentage: lineDiscountPercentage(item, rate),
			CheckedRowID:       item.CheckedRowID,
		})
	}

	amount := doc.NetValue
	if amount.IsZero() {
		amount = invoice.ComputeGrandTotal()
	}
	invoice.GrandTotal = invoice.ComputeGrandTotal()
	invoice.Payments = []model.SalesInvoicePayment{
		{InvoiceID: invoice.InvoiceID, ModeOfPayment: doc.PaymentMethod, Amount: amount},
	}
	return invoice, nil
}

// buildReturnInvoice locates the original sale for the return's receipt,
// finalizes it if it is still a draft, and mirrors its lines with negated
// quantities.
func (p *Posbridge) buildReturnInvoice(ctx context.Context, doc *model.ImportDocument) (*model.SalesInvoice, error) {
	original, err := p.datasource.FindOriginalInvoice(ctx, doc.MarketID, doc.PosNo, doc.ReceiptNo)
	if err != nil {
		return nil, err
	}
	if original.Docstatus == model.DocstatusDraft {
		if err := p.datasource.SubmitSalesInvoice(ctx, original.InvoiceID); err != nil {
			return nil, err
		}
		original.Docstatus = model.DocstatusSubmitted
	}

	invoice := &model.SalesInvoice{
		InvoiceID:        model.GenerateUUIDWithSuffix("siv"),
		POSProfile:       original.POSProfile,
		Customer:         original.Customer,
		Warehouse:        original.Warehouse,
		PostingDate:      doc.PostingDate,
		PostingTime:      doc.PostingTime,
		ImportDocumentID: doc.DocumentID,
		MarketID:         doc.MarketID,
		PosNo:            doc.PosNo,
		ReceiptNo:        doc.ReceiptNo,
		IsReturn:         true,
		ReturnAgainst:    original.InvoiceID,
		Docstatus:        model.DocstatusDraft,
	}
	for _, line := range original.Items {
		invoice.Items = append(invoice.Items, model.SalesInvoiceItem{
			InvoiceID:          invoice.InvoiceID,
			Idx:                line.Idx,
			ItemCode:           line.ItemCode,
			Description:        line.Description,
			Barcode:            line.Barcode,
			Qty:                line.Qty.Neg(),
			Rate:               line.Rate,
			PriceListRate:      line.PriceListRate,
			DiscountPercentage: line.DiscountPercentage,
			CheckedRowID:       line.CheckedRowID,
		})
	}

	invoice.GrandTotal = invoice.ComputeGrandTotal()
	amount := doc.NetValue.Abs()
	if amount.IsZero() {
		amount = invoice.GrandTotal.Abs()
	}
	invoice.Payments = []model.SalesInvoicePayment{
		{InvoiceID: invoice.InvoiceID, ModeOfPayment: doc.PaymentMethod, Amount: amount},
	}
	return invoice, nil
}

func lineRate(item model.ImportItem) decimal.Decimal {
	if item.Quantity.IsZero() {
		return decimal.Zero
	}
	return item.Amount().Div(item.Quantity)
}

func lineDiscountPercentage(item model.ImportItem, rate decimal.Decimal) decimal.Decimal {
	base := rate.Mul(item.Quantity)
	if !item.DiscountValue.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}
	return item.DiscountValue.Div(base).Mul(decimal.NewFromInt(100))
}

func rejectedItemCount(doc *model.ImportDocument) int {
	count := 0
	for _, item := range doc.Items {
		if item.Status == model.ItemStatusRejected {
			count++
		}
	}
	return count
}
