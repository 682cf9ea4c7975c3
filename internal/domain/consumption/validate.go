package consumption

import (
	"context"
	"fmt"

	"medstock/internal/core/apperror"
	appctx "medstock/internal/core/context"
	"medstock/internal/core/id"
	"medstock/internal/core/types"
)

// Skip reason reported for non-positive bulk items.
const reasonNonPositiveQuantity = "quantity must be positive"

func validateScale(qty types.Quantity) *apperror.AppError {
	if types.FitsScale(qty, types.QuantityScale) {
		return nil
	}
	return apperror.NewValidation(fmt.Sprintf("quantity supports at most %d decimal places", types.QuantityScale)).
		WithDetail("field", "quantity").
		WithDetail("quantity", qty.String())
}

func scopeFromContext(ctx context.Context) (scope, error) {
	u := appctx.GetUser(ctx)
	if u == nil {
		return scope{}, apperror.NewValidation("missing session context")
	}

	tenantID, err := id.Parse(u.TenantID)
	if err != nil {
		return scope{}, apperror.NewValidation("tenant is required").WithDetail("field", "tenantId")
	}
	companyID, err := id.Parse(u.CompanyID)
	if err != nil {
		return scope{}, apperror.NewValidation("company is required").WithDetail("field", "companyId")
	}
	if u.UserID == "" {
		return scope{}, apperror.NewValidation("user is required").WithDetail("field", "userId")
	}

	return scope{TenantID: tenantID, CompanyID: companyID, UserID: u.UserID}, nil
}

func parseRequired(field, value string) (id.ID, error) {
	if value == "" {
		return id.Nil(), apperror.NewValidation(field+" is required").WithDetail("field", field)
	}
	parsed, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation(field+" is not a valid id").
			WithDetail("field", field).
			WithCause(err)
	}
	return parsed, nil
}

func validateSingle(ctx context.Context, req SingleRequest) (*plan, error) {
	sc, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	productID, err := parseRequired("productId", req.ProductID)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation(reasonNonPositiveQuantity).WithDetail("field", "quantity")
	}
	if err := validateScale(req.Quantity); err != nil {
		return nil, err
	}
	p, err := validateEncounter(sc, req.PatientID, req.EncounterID)
	if err != nil {
		return nil, err
	}

	p.items = []plannedItem{{index: 0, productID: productID, quantity: req.Quantity, notes: req.Notes}}
	p.outcomes = []ItemOutcome{{Index: 0, ProductID: req.ProductID, Quantity: req.Quantity, Status: ItemPosted}}
	return p, nil
}

func validateBulk(ctx context.Context, req BulkRequest) (*plan, error) {
	sc, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, apperror.NewValidation("items must not be empty").WithDetail("field", "items")
	}
	p, err := validateEncounter(sc, req.PatientID, req.EncounterID)
	if err != nil {
		return nil, err
	}

	p.outcomes = make([]ItemOutcome, len(req.Items))
	for i, item := range req.Items {
		p.outcomes[i] = ItemOutcome{Index: i, ProductID: item.ProductID, Quantity: item.Quantity}
		if !item.Quantity.IsPositive() {
			p.outcomes[i].Status = ItemSkipped
			p.outcomes[i].Reason = reasonNonPositiveQuantity
			continue
		}
		if err := validateScale(item.Quantity); err != nil {
			return nil, err.WithDetail("index", i)
		}

		productID, err := parseRequired("productId", item.ProductID)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("index", i)
			}
			return nil, err
		}
		p.outcomes[i].Status = ItemPosted
		p.items = append(p.items, plannedItem{index: i, productID: productID, quantity: item.Quantity, notes: item.Notes})
	}

	if len(p.items) == 0 {
		return nil, apperror.NewValidation(fmt.Sprintf("all %d items have a non-positive quantity", len(req.Items))).
			WithDetail("field", "items")
	}
	return p, nil
}

func validateEncounter(sc scope, patient, encounter string) (*plan, error) {
	patientID, err := parseRequired("patientId", patient)
	if err != nil {
		return nil, err
	}
	encounterID, err := parseRequired("encounterId", encounter)
	if err != nil {
		return nil, err
	}
	return &plan{scope: sc, patientID: patientID, encounterID: encounterID}, nil
}
