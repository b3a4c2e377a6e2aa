package api

import (
	"crypto/subtle"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/commands"
	apperrors "github.com/gmsas95/medicamenta/internal/errors"
	"github.com/gmsas95/medicamenta/internal/security"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": time.Now().Unix(),
	}
	if s.metrics != nil {
		body["metrics"] = s.metrics.Snapshot()
	}
	if s.storeState != nil {
		state := s.storeState()
		body["store"] = state
		if state == "open" {
			body["status"] = "degraded"
		}
	}
	return c.JSON(body)
}

// handleLogin issues a token whose subject is the user id. Without a configured admin
// password every password is accepted, which is only meant for local use.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apperrors.ErrBadRequest.WithMessage("invalid request"))
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || strings.Contains(req.UserID, ":") {
		return s.writeError(c, apperrors.ErrBadRequest.WithMessage("userId is required and cannot contain ':'"))
	}

	if want := s.config.Security.AdminPassword; want != "" {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
			s.logger.Warn("Rejected login", zap.String("user_id", req.UserID))
			return s.writeError(c, apperrors.ErrUnauthorized.WithMessage("invalid credentials"))
		}
	}

	token, err := s.issueToken(req.UserID, time.Now())
	if err != nil {
		return s.writeError(c, apperrors.Wrap(err, apperrors.ErrInternal.Code, "failed to generate token"))
	}
	return c.JSON(fiber.Map{"token": token})
}

func (s *Server) ref(c *fiber.Ctx) commands.Ref {
	return commands.Ref{MedicationID: c.Params("id"), UserID: owner(c)}
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds, err := s.handler.List(c.UserContext(), owner(c), c.QueryBool("includeArchived", false))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toResponses(meds))
}

func (s *Server) handleAddMedication(c *fiber.Ctx) error {
	var req addRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apperrors.ErrBadRequest.WithMessage("invalid request"))
	}
	if err := s.input.ValidateAll(
		security.Field{Name: "name", Value: req.Name},
		security.Field{Name: "dosage", Value: req.Dosage},
		security.Field{Name: "frequency", Value: req.Frequency},
		security.Field{Name: "startTime", Value: req.StartTime},
		security.Field{Name: "notes", Value: req.Notes},
		security.Field{Name: "stockUnit", Value: req.StockUnit},
	); err != nil {
		return s.writeError(c, err)
	}

	res, err := s.handler.Add(c.UserContext(), commands.AddMedication{
		UserID:       owner(c),
		Name:         req.Name,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		StartTime:    req.StartTime,
		Notes:        req.Notes,
		CurrentStock: req.CurrentStock,
		StockUnit:    req.StockUnit,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	status := fiber.StatusCreated
	if res.Medication == nil {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(medicationResultResponse{
		Medication: toResponse(res.Medication),
		Validation: res.Validation,
	})
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	m, err := s.handler.Get(c.UserContext(), s.ref(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toResponse(m))
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apperrors.ErrBadRequest.WithMessage("invalid request"))
	}
	u := req.DetailsUpdate
	if err := s.input.ValidateAll(
		security.Field{Name: "name", Value: deref(u.Name)},
		security.Field{Name: "dosage", Value: deref(u.Dosage)},
		security.Field{Name: "frequency", Value: deref(u.Frequency)},
		security.Field{Name: "time", Value: deref(u.Time)},
		security.Field{Name: "notes", Value: deref(u.Notes)},
		security.Field{Name: "stockUnit", Value: deref(u.StockUnit)},
	); err != nil {
		return s.writeError(c, err)
	}

	ref := s.ref(c)
	res, err := s.handler.Update(c.UserContext(), commands.UpdateMedication{
		MedicationID:       ref.MedicationID,
		UserID:             ref.UserID,
		Updates:            req.DetailsUpdate,
		Active:             req.Active,
		RegenerateSchedule: req.RegenerateSchedule,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	status := fiber.StatusOK
	if res.Medication == nil {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(medicationResultResponse{
		Medication: toResponse(res.Medication),
		Validation: res.Validation,
	})
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	var req deleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return s.writeError(c, apperrors.ErrBadRequest.WithMessage("invalid request"))
		}
	}
	if req.MedicationName == "" {
		req.MedicationName = c.Query("name")
	}

	ref := s.ref(c)
	err := s.handler.Delete(c.UserContext(), commands.DeleteMedication{
		MedicationID:    ref.MedicationID,
		UserID:          ref.UserID,
		MedicationName:  req.MedicationName,
		ConfirmDeletion: req.ConfirmDeletion || c.QueryBool("confirm", false),
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRecordDose(c *fiber.Ctx) error {
	var req doseRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apperrors.ErrBadRequest.WithMessage("invalid request"))
	}
	if err := s.input.ValidateAll(
		security.Field{Name: "notes", Value: req.Notes},
		security.Field{Name: "administeredBy.id", Value: req.AdministeredBy.ID},
		security.Field{Name: "administeredBy.name", Value: req.AdministeredBy.Name},
	); err != nil {
		return s.writeError(c, err)
	}

	ref := s.ref(c)
	res, err := s.handler.RecordDose(c.UserContext(), commands.RecordDose{
		MedicationID:   ref.MedicationID,
		UserID:         ref.UserID,
		Time:           req.Time,
		Status:         req.Status,
		AdministeredBy: req.AdministeredBy,
		Notes:          req.Notes,
		DecreaseStock:  req.DecreaseStock,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toDoseResponse(res))
}

func (s *Server) handleResetDose(c *fiber.Ctx) error {
	at, err := url.PathUnescape(c.Params("time"))
	if err != nil {
		return s.writeError(c, apperrors.ErrInvalidTime)
	}

	ref := s.ref(c)
	res, err := s.handler.ResetDose(c.UserContext(), commands.ResetDose{
		MedicationID: ref.MedicationID,
		UserID:       ref.UserID,
		Time:         at,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toDoseResponse(res))
}

func (s *Server) handleAdjustStock(c *fiber.Ctx) error {
	var req stockRequest
	if err := c.BodyParser(&req); err != nil {
		return s.writeError(c, apperrors.ErrBadRequest.WithMessage("invalid request"))
	}

	ref := s.ref(c)
	res, err := s.handler.AdjustStock(c.UserContext(), commands.AdjustStock{
		MedicationID: ref.MedicationID,
		UserID:       ref.UserID,
		Operation:    req.Operation,
		Amount:       req.Amount,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toDoseResponse(res))
}

func (s *Server) handleArchive(c *fiber.Ctx) error {
	m, err := s.handler.Archive(c.UserContext(), s.ref(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toResponse(m))
}

func (s *Server) handleUnarchive(c *fiber.Ctx) error {
	m, err := s.handler.Unarchive(c.UserContext(), s.ref(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(toResponse(m))
}

func (s *Server) handleForecast(c *fiber.Ctx) error {
	res, err := s.handler.Forecast(c.UserContext(), s.ref(c), c.QueryInt("days", commands.DefaultForecastDays))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleRestock(c *fiber.Ctx) error {
	recs, err := s.handler.RestockRecommendations(c.UserContext(), owner(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(recs)
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	res, err := s.handler.Adherence(c.UserContext(), owner(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleValidateList(c *fiber.Ctx) error {
	res, err := s.handler.ValidateList(c.UserContext(), owner(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(res)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
