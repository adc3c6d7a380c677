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

package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/kcsc/posbridge/internal/apierror"
	"github.com/kcsc/posbridge/model"
)

// ItemCodesExist reports which of the given item codes exist in the item
// registry. One round trip per aggregation pass, not per item.
func (d Datasource) ItemCodesExist(ctx context.Context, codes []string) (map[string]bool, error) {
	found := map[string]bool{}
	if len(codes) == 0 {
		return found, nil
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT item_code FROM items WHERE item_code = ANY($1)
	`, pq.Array(codes))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to look up item codes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan item code", err)
		}
		found[code] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over item codes", err)
	}
	return found, nil
}

// ListPOSProfiles retrieves all registered POS profiles.
func (d Datasource) ListPOSProfiles(ctx context.Context) ([]*model.POSProfile, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT name, COALESCE(warehouse, ''), COALESCE(customer, '') FROM pos_profiles
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve POS profiles", err)
	}
	defer rows.Close()

	profiles := []*model.POSProfile{}
	for rows.Next() {
		profile := model.POSProfile{}
		if err := rows.Scan(&profile.Name, &profile.Warehouse, &profile.Customer); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan POS profile", err)
		}
		profiles = append(profiles, &profile)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over POS profiles", err)
	}
	return profiles, nil
}

// GetPOSProfile retrieves one POS profile by name.
func (d Datasource) GetPOSProfile(ctx context.Context, name string) (*model.POSProfile, error) {
	profile := model.POSProfile{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT name, COALESCE(warehouse, ''), COALESCE(customer, '') FROM pos_profiles WHERE name = $1
	`, name)
	err := row.Scan(&profile.Name, &profile.Warehouse, &profile.Customer)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "POS profile not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve POS profile", err)
	}
	return &profile, nil
}

// PaymentMethodsExist reports which of the given payment method names exist.
func (d Datasource) PaymentMethodsExist(ctx context.Context, names []string) (map[string]bool, error) {
	found := map[string]bool{}
	if len(names) == 0 {
		return found, nil
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT name FROM payment_methods WHERE name = ANY($1)
	`, pq.Array(names))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to look up payment methods", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payment method", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over payment methods", err)
	}
	return found, nil
}
