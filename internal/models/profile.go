package models

type ScheduleWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Profile struct {
	DoctorName             string          `json:"doctor_name"`
	ClinicName             string          `json:"clinic_name"`
	Morning                *ScheduleWindow `json:"morning,omitempty"`
	Evening                *ScheduleWindow `json:"evening,omitempty"`
	AvgConsultationMinutes int             `json:"avg_consultation_minutes"`
}

// ProfileUpdate carries a partial profile edit. Nil fields are left untouched
// so a clinic-name change never clobbers the schedule windows.
type ProfileUpdate struct {
	DoctorName             *string         `json:"doctor_name,omitempty"`
	ClinicName             *string         `json:"clinic_name,omitempty"`
	Morning                *ScheduleWindow `json:"morning,omitempty"`
	Evening                *ScheduleWindow `json:"evening,omitempty"`
	AvgConsultationMinutes *int            `json:"avg_consultation_minutes,omitempty"`
}
