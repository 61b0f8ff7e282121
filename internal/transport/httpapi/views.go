package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/service"
)

type userView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Age       *int      `json:"age,omitempty"`
	Language  string    `json:"language,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserView(u *model.User, role string) userView {
	return userView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Age:       u.Age,
		Language:  u.Language,
		Role:      role,
		CreatedAt: u.CreatedAt,
	}
}

type patientView struct {
	ID      uuid.UUID             `json:"id"`
	UserID  uuid.UUID             `json:"userId"`
	Reports []model.PatientReport `json:"reports"`
}

type profileView struct {
	userView
	Doctor  *service.DoctorProfile `json:"doctorProfile,omitempty"`
	Patient *patientView           `json:"patientProfile,omitempty"`
}

func newProfileView(p *service.Profile) (profileView, error) {
	v := profileView{userView: newUserView(p.User, p.Role)}
	if p.Doctor != nil {
		d, err := service.NewDoctorProfile(p.Doctor)
		if err != nil {
			return profileView{}, err
		}
		d.Name, d.Email, d.Phone = p.User.Name, p.User.Email, p.User.Phone
		v.Doctor = &d
	}
	if p.Patient != nil {
		reports, err := p.Patient.ReportList()
		if err != nil {
			return profileView{}, err
		}
		if reports == nil {
			reports = []model.PatientReport{}
		}
		v.Patient = &patientView{ID: p.Patient.ID, UserID: p.Patient.UserID, Reports: reports}
	}
	return v, nil
}

type appointmentView struct {
	ID          uuid.UUID               `json:"id"`
	DoctorID    uuid.UUID               `json:"doctorId"`
	PatientID   uuid.UUID               `json:"patientId"`
	BookingDate time.Time               `json:"bookingDate"`
	Status      model.AppointmentStatus `json:"status"`
	Notes       string                  `json:"notes,omitempty"`
	Amount      decimal.Decimal         `json:"amount"`
	Paid        bool                    `json:"paid"`
	PaymentID   string                  `json:"paymentId,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

func newAppointmentView(a model.Appointment) appointmentView {
	return appointmentView{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		BookingDate: a.BookingDate,
		Status:      a.Status,
		Notes:       a.Notes,
		Amount:      a.Amount,
		Paid:        a.Paid,
		PaymentID:   a.PaymentID,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type reviewView struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patientId"`
	DoctorID  uuid.UUID `json:"doctorId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newReviewView(r model.Review) reviewView {
	return reviewView{
		ID:        r.ID,
		PatientID: r.PatientID,
		DoctorID:  r.DoctorID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type slotView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
