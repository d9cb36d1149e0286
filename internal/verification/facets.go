package verification

import (
	"context"
	"errors"

	"lms/internal/application/models"
	"lms/internal/audit"
	"lms/internal/identity"
	"lms/internal/room"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
	"lms/pkg/platform/sentinel"
	"lms/pkg/requestcontext"
)

// CapturePhoto stores a live photo. The capture itself is the proof.
func (s *Service) CapturePhoto(ctx context.Context, caller Caller, cmd CapturePhoto) (room.Event, error) {
	var event room.Event
	err := s.run(ctx, EventCapturePhoto, cmd.ApplicationID, caller, cmd.Validate, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		if _, err := s.update(ctx, caller, cmd.ApplicationID, func(app *models.LoanApplication) error {
			return app.RecordPhoto(cmd.ImageData, cmd.Location, now)
		}); err != nil {
			return err
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutPhotoCaptured, PhotoCapturedPayload{
			Timestamp: now,
			Location:  cmd.Location,
		})
		s.emitFacet(ctx, caller, cmd.ApplicationID, models.FacetPhoto, true)
		return nil
	})
	return event, err
}

// VerifyLocation runs the location policy and records its outcome.
func (s *Service) VerifyLocation(ctx context.Context, caller Caller, cmd VerifyLocation) (room.Event, error) {
	var event room.Event
	err := s.run(ctx, EventVerifyLocation, cmd.ApplicationID, caller, cmd.Validate, func(ctx context.Context) error {
		if err := s.precheck(ctx, caller, cmd.ApplicationID, models.FacetLocation); err != nil {
			return err
		}
		result, err := s.location.Check(ctx, *cmd.Coordinates)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "location check failed")
		}
		now := requestcontext.Now(ctx)
		if _, err := s.update(ctx, caller, cmd.ApplicationID, func(app *models.LoanApplication) error {
			return app.RecordLocation(*cmd.Coordinates, result.Verified, result.Confidence, result.Message, now)
		}); err != nil {
			return err
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutLocationVerified, LocationVerifiedPayload{
			Verified:   result.Verified,
			Confidence: result.Confidence,
			Message:    result.Message,
		})
		s.emitFacet(ctx, caller, cmd.ApplicationID, models.FacetLocation, result.Verified)
		return nil
	})
	return event, err
}

// VerifyWitness records a witness attestation. Presence is the proof.
func (s *Service) VerifyWitness(ctx context.Context, caller Caller, cmd VerifyWitness) (room.Event, error) {
	var event room.Event
	err := s.run(ctx, EventVerifyWitness, cmd.ApplicationID, caller, cmd.Validate, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		if _, err := s.update(ctx, caller, cmd.ApplicationID, func(app *models.LoanApplication) error {
			return app.RecordWitness(models.WitnessFacet{
				Name:      cmd.Witness.Name,
				IDNumber:  cmd.Witness.IDNumber,
				Signature: cmd.Witness.Signature,
				Photo:     cmd.Witness.Photo,
			}, now)
		}); err != nil {
			return err
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutWitnessVerified, WitnessVerifiedPayload{
			WitnessName: cmd.Witness.Name,
			Timestamp:   now,
		})
		s.emitFacet(ctx, caller, cmd.ApplicationID, models.FacetWitness, true)
		return nil
	})
	return event, err
}

// VerifyID compares the applicant's legal name with the payment account holder
// name as stored at the moment the token is held.
func (s *Service) VerifyID(ctx context.Context, caller Caller, cmd VerifyID) (room.Event, error) {
	cmd.Normalize()
	var event room.Event
	err := s.run(ctx, EventVerifyID, cmd.ApplicationID, caller, cmd.Validate, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		var result identity.Result
		if _, err := s.update(ctx, caller, cmd.ApplicationID, func(app *models.LoanApplication) error {
			result = identity.Match(app.PersonalInfo.FullName, app.PaymentAccount.AccountName)
			return app.RecordIdentityDocument(cmd.FrontImage, cmd.BackImage, cmd.Method, result.Match, result.Score, now)
		}); err != nil {
			return err
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutIDVerified, IDVerifiedPayload{
			Verified:   result.Match,
			MatchScore: result.Score,
			Message:    result.Message,
		})
		s.emitFacet(ctx, caller, cmd.ApplicationID, models.FacetIdentityDocument, result.Match)
		return nil
	})
	return event, err
}

// VerifyMobileMoney looks the account up with its provider and stores the
// details. An unknown account is recorded as unverified.
func (s *Service) VerifyMobileMoney(ctx context.Context, caller Caller, cmd VerifyMobileMoney) (room.Event, error) {
	cmd.Normalize()
	var event room.Event
	err := s.run(ctx, EventVerifyMobileMoney, cmd.ApplicationID, caller, cmd.Validate, func(ctx context.Context) error {
		if err := s.precheck(ctx, caller, cmd.ApplicationID, models.FacetPaymentAccount); err != nil {
			return err
		}
		account, err := s.accounts.Lookup(ctx, cmd.Provider, cmd.PhoneNumber)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			account = Account{}
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
		}
		details := models.PaymentAccountDetails{
			Provider:    cmd.Provider,
			PhoneNumber: cmd.PhoneNumber,
			AccountName: account.HolderName,
			Verified:    account.Active && account.HolderName != "",
		}
		now := requestcontext.Now(ctx)
		if _, err := s.update(ctx, caller, cmd.ApplicationID, func(app *models.LoanApplication) error {
			return app.RecordPaymentAccount(details, now)
		}); err != nil {
			return err
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutMobileMoneyVerified, MobileMoneyVerifiedPayload{
			Provider:    details.Provider,
			Verified:    details.Verified,
			AccountName: details.AccountName,
		})
		s.emitFacet(ctx, caller, cmd.ApplicationID, models.FacetPaymentAccount, details.Verified)
		return nil
	})
	return event, err
}

// precheck runs the checks of the write ahead of an external call so a request
// that the write would refuse never reaches a downstream service.
func (s *Service) precheck(ctx context.Context, caller Caller, appID id.ApplicationID, facet models.Facet) error {
	app, err := s.loadAuthorized(ctx, caller, appID)
	if err != nil {
		return err
	}
	return app.CanSubmit(facet)
}

// update authorizes against the stored aggregate and applies fn in one write.
func (s *Service) update(ctx context.Context, caller Caller, appID id.ApplicationID, fn func(app *models.LoanApplication) error) (*models.LoanApplication, error) {
	return s.store.Update(ctx, appID, func(app *models.LoanApplication) error {
		if err := authorize(caller.Principal, app); err != nil {
			return err
		}
		return fn(app)
	})
}

func (s *Service) emitFacet(ctx context.Context, caller Caller, appID id.ApplicationID, facet models.Facet, verified bool) {
	outcome := audit.OutcomeUnverified
	if verified {
		outcome = audit.OutcomeVerified
	}
	s.emit(ctx, audit.Event{
		ApplicationID: appID.String(),
		SubjectID:     caller.Principal.SubjectID.String(),
		Action:        audit.ActionFacetSubmitted,
		Facet:         string(facet),
		Outcome:       outcome,
	})
}
