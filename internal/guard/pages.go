package guard

import "github.com/carepoint/carepoint/internal/rbac"

// PageAction is a control shown only to principals holding Permission.
type PageAction struct {
	Label      string
	Permission string
}

// PageDef describes a clinical page shell.
type PageDef struct {
	ID      string
	Title   string
	Summary string
	Actions []PageAction
}

// Catalogue lists the clinical pages. The dashboard and admin pages have
// their own handlers.
func Catalogue() []PageDef {
	return []PageDef{
		{
			ID: rbac.PagePatients, Title: "Patients", Summary: "Registered patients and their records.",
			Actions: []PageAction{
				{"Register patient", rbac.PermPatientsCreate},
				{"Edit record", rbac.PermPatientsUpdate},
				{"Delete record", rbac.PermPatientsDelete},
			},
		},
		{
			ID: rbac.PageTriage, Title: "Triage", Summary: "Vital signs and priority queue.",
			Actions: []PageAction{
				{"Record vitals", rbac.PermTriageCreate},
				{"Update priority", rbac.PermTriageUpdate},
				{"Remove entry", rbac.PermTriageDelete},
			},
		},
		{
			ID: rbac.PageDoctors, Title: "Doctors", Summary: "Consultations and clinician schedules.",
			Actions: []PageAction{
				{"Start consultation", rbac.PermConsultationsCreate},
				{"Request lab test", rbac.PermLabRequestsCreate},
				{"Write prescription", rbac.PermPrescriptionsCreate},
				{"Add doctor", rbac.PermDoctorsCreate},
			},
		},
		{
			ID: rbac.PageLab, Title: "Laboratory", Summary: "Test requests and results.",
			Actions: []PageAction{
				{"Request test", rbac.PermLabRequestsCreate},
				{"Enter result", rbac.PermLabResultsCreate},
				{"Amend result", rbac.PermLabResultsUpdate},
			},
		},
		{
			ID: rbac.PagePharmacy, Title: "Pharmacy", Summary: "Prescriptions and medicine stock.",
			Actions: []PageAction{
				{"Dispense prescription", rbac.PermPrescriptionsUpdate},
				{"Add medicine", rbac.PermMedicinesCreate},
				{"Adjust stock", rbac.PermMedicinesUpdate},
			},
		},
		{
			ID: rbac.PageAppointments, Title: "Appointments", Summary: "Bookings and the daily schedule.",
			Actions: []PageAction{
				{"Book appointment", rbac.PermAppointmentsCreate},
				{"Reschedule", rbac.PermAppointmentsUpdate},
				{"Cancel", rbac.PermAppointmentsDelete},
			},
		},
		{
			ID: rbac.PageBilling, Title: "Billing", Summary: "Invoices and payments.",
			Actions: []PageAction{
				{"Create invoice", rbac.PermBillingCreate},
				{"Record payment", rbac.PermBillingUpdate},
			},
		},
		{
			ID: rbac.PageReports, Title: "Reports", Summary: "Hospital activity reports.",
			Actions: []PageAction{
				{"Export report", rbac.PermReportsExport},
			},
		},
	}
}
