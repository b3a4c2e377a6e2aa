package api

import (
	"github.com/gmsas95/medicamenta/internal/commands"
	"github.com/gmsas95/medicamenta/internal/medication"
	"github.com/gmsas95/medicamenta/internal/validation"
)

type loginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type addRequest struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	StartTime    string `json:"startTime"`
	Notes        string `json:"notes"`
	CurrentStock int    `json:"currentStock"`
	StockUnit    string `json:"stockUnit"`
}

type updateRequest struct {
	medication.DetailsUpdate
	Active             *bool `json:"active,omitempty"`
	RegenerateSchedule bool  `json:"regenerateSchedule"`
}

type deleteRequest struct {
	MedicationName  string `json:"medicationName"`
	ConfirmDeletion bool   `json:"confirmDeletion"`
}

type doseRequest struct {
	Time           string                   `json:"time"`
	Status         medication.DoseStatus    `json:"status"`
	AdministeredBy medication.Administrator `json:"administeredBy"`
	Notes          string                   `json:"notes"`
	DecreaseStock  *bool                    `json:"decreaseStock,omitempty"`
}

type stockRequest struct {
	Operation commands.StockOperation `json:"operation"`
	Amount    int                     `json:"amount"`
}

// medicationResponse is the plain form plus a few derived read-only figures
type medicationResponse struct {
	medication.Plain
	AdherenceRate int    `json:"adherenceRate"`
	NextDose      string `json:"nextDose,omitempty"`
	IsContinuous  bool   `json:"isContinuous"`
}

func toResponse(m *medication.Medication) *medicationResponse {
	if m == nil {
		return nil
	}
	r := &medicationResponse{
		Plain:         m.ToPlain(),
		AdherenceRate: m.AdherenceRate(),
		IsContinuous:  m.IsContinuous(),
	}
	if d, ok := m.NextDose(); ok {
		r.NextDose = d.Time()
	}
	return r
}

func toResponses(meds []*medication.Medication) []*medicationResponse {
	out := make([]*medicationResponse, 0, len(meds))
	for _, m := range meds {
		out = append(out, toResponse(m))
	}
	return out
}

type medicationResultResponse struct {
	Medication *medicationResponse `json:"medication,omitempty"`
	Validation validation.Result   `json:"validation"`
}

type doseResponse struct {
	Medication   *medicationResponse   `json:"medication"`
	Dose         *medication.PlainDose `json:"dose,omitempty"`
	StockWarning string                `json:"stockWarning,omitempty"`
}

func toDoseResponse(res commands.DoseResult) doseResponse {
	out := doseResponse{Medication: toResponse(res.Medication), StockWarning: res.StockWarning}
	if res.Dose != nil {
		p := res.Dose.Props()
		out.Dose = &medication.PlainDose{
			Time:           p.Time,
			Status:         p.Status,
			AdministeredBy: p.AdministeredBy,
			Notes:          p.Notes,
			Timestamp:      p.Timestamp,
		}
	}
	return out
}
