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
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/model"
)

// totalsTolerance is the absolute currency tolerance between declared and
// computed invoice totals.
var totalsTolerance = decimal.NewFromFloat(0.01)

// profileMatchDistance is the maximum edit distance accepted when resolving
// a POS profile by market description and terminal number.
const profileMatchDistance = 2

// RunAggregation folds the batch's checked rows into one import document per
// invoice key, cross-checked against the item catalog, the POS profile
// registry and the payment-method registry. Documents and their item lines
// land in independently committed chunks; the consumed rows are flagged
// imported only after their owning chunk commits, so a crash between the two
// writes re-aggregates instead of losing invoices. Returns the number of
// documents created.
func (p *Posbridge) RunAggregation(ctx context.Context, batchID string) (int, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	rows, err := p.datasource.GetCheckedRowsForAggregation(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	refs, err := p.loadReferenceData(ctx, rows)
	if err != nil {
		return 0, err
	}

	// Group by invoice key in first-seen order; the splitter guarantees all
	// rows of one key share the batch.
	orderedKeys := []string{}
	groups := map[string][]*model.CheckedRow{}
	for _, row := range rows {
		key := row.InvoiceKey()
		if _, seen := groups[key]; !seen {
			orderedKeys = append(orderedKeys, key)
		}
		groups[key] = append(groups[key], row)
	}

	maxSeq, err := p.datasource.MaxImportDocumentSeq(ctx)
	if err != nil {
		return 0, err
	}
	docs := make([]*model.ImportDocument, 0, len(orderedKeys))
	for i, key := range orderedKeys {
		doc := buildImportDocument(maxSeq+int64(i)+1, batchID, key, groups[key], refs)
		docs = append(docs, doc)
	}

	chunkSize := cfg.Staging.DocumentCommitInterval
	for start := 0; start < len(docs); start += chunkSize {
		end := start + chunkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]
		if err := p.datasource.InsertImportDocuments(ctx, chunk, chunkSize); err != nil {
			return start, err
		}
		consumed := []int64{}
		for _, doc := range chunk {
			for _, item := range doc.Items {
				consumed = append(consumed, item.CheckedRowID)
			}
		}
		if err := p.datasource.MarkCheckedRowsImported(ctx, consumed); err != nil {
			return start, err
		}
	}
	logrus.Infof("aggregation for batch %s produced %d documents from %d rows", batchID, len(docs), len(rows))
	return len(docs), nil
}

// referenceData holds the master data snapshot one aggregation pass checks
// against: item existence, payment-method existence and the profile registry.
type referenceData struct {
	itemExists    map[string]bool
	paymentExists map[string]bool
	profiles      []*model.POSProfile
}

func (p *Posbridge) loadReferenceData(ctx context.Context, rows []*model.CheckedRow) (*referenceData, error) {
	codeSet := map[string]bool{}
	codes := []string{}
	methodSet := map[string]bool{}
	methods := []string{}
	for _, row := range rows {
		if code := strings.TrimSpace(row.ItemCode); code != "" && !codeSet[code] {
			codeSet[code] = true
			codes = append(codes, code)
		}
		if method := strings.TrimSpace(row.PaymentMethod); method != "" && !methodSet[method] {
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

const profileCacheKey = "posbridge:pos_profiles"

// loadProfileRegistry returns the POS profile registry, served from the
// cache when one is wired. The registry is small and changes rarely; a short
// TTL keeps manual registry edits visible within a few minutes.
func (p *Posbridge) loadProfileRegistry(ctx context.Context) ([]*model.POSProfile, error) {
	if p.cache != nil {
		var cached []*model.POSProfile
		if err := p.cache.Get(ctx, profileCacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}
	profiles, err := p.datasource.ListPOSProfiles(ctx)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, profileCacheKey, profiles, 5*time.Minute); err != nil {
			logrus.WithError(err).Warn("failed to cache POS profile registry")
		}
	}
	return profiles, nil
}

// resolveProfile matches the market-description/terminal key against the
// profile registry: exact case-insensitive match first, then the closest
// registry name within the edit-distance bound. Terminal naming drifts
// between the registry and the terminals (spacing, casing, truncation), so
// an exact-only lookup rejects too much.
func (r *referenceData) resolveProfile(key string) (*model.POSProfile, bool) {
	lowered := strings.ToLower(strings.TrimSpace(key))
	var best *model.POSProfile
	bestDistance := profileMatchDistance + 1
	for _, profile := range r.profiles {
		candidate := strings.ToLower(strings.TrimSpace(profile.Name))
		if candidate == lowered {
			return profile, true
		}
		distance := levenshtein.DistanceForStrings([]rune(lowered), []rune(candidate), levenshtein.DefaultOptions)
		if distance < bestDistance {
			bestDistance = distance
			best = profile
		}
	}
	if best != nil && bestDistance <= profileMatchDistance {
		return best, true
	}
	return nil, false
}

func buildImportDocument(seq int64, batchID, key string, rows []*model.CheckedRow, refs *referenceData) *model.ImportDocument {
	first := rows[0]
	doc := &model.ImportDocument{
		DocumentID:        model.FormatDocumentID(seq),
		BatchID:           batchID,
		InvoiceKey:        key,
		MarketID:          first.MarketID,
		MarketDescription: first.MarketDescription,
		NielsenCode:       first.NielsenCode,
		PosNo:             first.PosNo,
		ReceiptNo:         first.ReceiptNo,
		BillingType:       first.BillingType,
		PaymentMethod:     first.PaymentMethod,
		Docstatus:         model.DocstatusDraft,
	}
	doc.PostingDate, doc.PostingTime = postingStamp(first)

	computedTotal := decimal.Zero
	computedQty := decimal.Zero
	declaredTotal := model.ParseDecimal(first.InvoiceTotal)
	declaredQty := model.ParseDecimal(first.TotalQuantity)
	qualityRejected := false
	qualityReasons := []string{}
	itemReasons := []string{}

	for i, row := range rows {
		item := model.ImportItem{
			ItemID:          model.GenerateUUIDWithSuffix("itm"),
			DocumentID:      doc.DocumentID,
			Idx:             i + 1,
			CheckedRowID:    row.CheckID,
			ItemCode:        row.ItemCode,
			ItemDescription: row.ItemDescription,
			Barcode:         row.Barcode,
			Quantity:        model.ParseDecimal(row.Quantity),
			SalesPrice:      model.ParseDecimal(row.SalesPrice),
			DiscountPercent: model.ParseDecimal(row.DiscountPercent),
			DiscountValue:   model.ParseDecimal(row.DiscountValue),
			Status:          model.ItemStatusChecked,
		}
		if !refs.itemExists[strings.TrimSpace(row.ItemCode)] {
			item.Status = model.ItemStatusRejected
			item.RejectedReason = fmt.Sprintf("%d- Item code not found in Item", item.Idx)
			itemReasons = append(itemReasons, item.RejectedReason)
		}
		doc.Items = append(doc.Items, item)

		computedTotal = computedTotal.Add(model.ParseDecimal(row.TotalPrice))
		computedQty = computedQty.Add(item.Quantity)
		// All lines of one invoice carry identical declared totals;
		// MAX collapses them and tolerates a stray understated line.
		if t := model.ParseDecimal(row.InvoiceTotal); t.GreaterThan(declaredTotal) {
			declaredTotal = t
		}
		if q := model.ParseDecimal(row.TotalQuantity); q.GreaterThan(declaredQty) {
			declaredQty = q
		}
		if row.Status == model.CheckStatusRejected {
			qualityRejected = true
			if row.RejectedReason != "" && !contains(qualityReasons, row.RejectedReason) {
				qualityReasons = append(qualityReasons, row.RejectedReason)
			}
		}
	}
	doc.ComputedTotal = computedTotal
	doc.ComputedQuantity = computedQty
	doc.DeclaredTotal = declaredTotal
	doc.DeclaredQuantity = declaredQty
	doc.NetValue = declaredTotal

	profileKey := model.POSProfileKey(first.MarketDescription, first.PosNo)
	profile, profileFound := refs.resolveProfile(profileKey)
	if profileFound {
		doc.POSProfile = profile.Name
	}
	paymentFound := refs.paymentExists[strings.TrimSpace(first.PaymentMethod)]

	reasons := []string{}
	if qualityRejected {
		reasons = append(reasons, qualityReasons...)
	}
	reasons = append(reasons, itemReasons...)
	if !profileFound {
		reasons = append(reasons, fmt.Sprintf("POS profile not found: %s", profileKey))
	}
	if !paymentFound {
		reasons = append(reasons, fmt.Sprintf("Payment method not found: %s", first.PaymentMethod))
	}
	if declaredTotal.Sub(computedTotal).Abs().GreaterThan(totalsTolerance) {
		reasons = append(reasons, fmt.Sprintf("Invoice amount mismatch: %s vs %s", declaredTotal, computedTotal))
	}
	if !declaredQty.Equal(computedQty) {
		reasons = append(reasons, fmt.Sprintf("Quantity mismatch: %s vs %s", declaredQty, computedQty))
	}

	switch {
	case qualityRejected:
		doc.Status = model.DocStatusQualityRejected
	case len(reasons) > 0:
		doc.Status = model.DocStatusMasterDataRejected
	default:
		doc.Status = model.DocStatusMasterDataChecked
	}
	doc.RejectedReason = strings.Join(reasons, ", ")
	return doc
}

// postingStamp derives the accounting posting date and time from the row's
// timestamp. Rows that failed the quality timestamp check fall back to the
// day field so even rejected documents carry a usable date.
func postingStamp(row *model.CheckedRow) (string, string) {
	value := strings.TrimSpace(row.DateTimestamp)
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, value); err == nil {
			return ts.Format("2006-01-02"), ts.Format("15:04:05")
		}
	}
	return strings.TrimSpace(row.Day), "00:00:00"
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
