package rbac

// PermissionAll grants every permission. Only the Admin role carries it.
const PermissionAll = "all"

// Resource permissions. Each action needs its own explicit string.
const (
	PermUsersCreate = "users.create"
	PermUsersRead   = "users.read"
	PermUsersUpdate = "users.update"
	PermUsersDelete = "users.delete"

	PermPatientsCreate = "patients.create"
	PermPatientsRead   = "patients.read"
	PermPatientsUpdate = "patients.update"
	PermPatientsDelete = "patients.delete"

	PermDoctorsCreate = "doctors.create"
	PermDoctorsRead   = "doctors.read"
	PermDoctorsUpdate = "doctors.update"
	PermDoctorsDelete = "doctors.delete"

	PermAppointmentsCreate = "appointments.create"
	PermAppointmentsRead   = "appointments.read"
	PermAppointmentsUpdate = "appointments.update"
	PermAppointmentsDelete = "appointments.delete"

	PermTriageCreate = "triage.create"
	PermTriageRead   = "triage.read"
	PermTriageUpdate = "triage.update"
	PermTriageDelete = "triage.delete"

	PermConsultationsCreate = "consultations.create"
	PermConsultationsRead   = "consultations.read"
	PermConsultationsUpdate = "consultations.update"

	PermLabRequestsCreate = "labRequests.create"
	PermLabRequestsRead   = "labRequests.read"
	PermLabRequestsUpdate = "labRequests.update"

	PermLabResultsCreate = "labResults.create"
	PermLabResultsRead   = "labResults.read"
	PermLabResultsUpdate = "labResults.update"

	PermPrescriptionsCreate = "prescriptions.create"
	PermPrescriptionsRead   = "prescriptions.read"
	PermPrescriptionsUpdate = "prescriptions.update"

	PermMedicinesCreate = "medicines.create"
	PermMedicinesRead   = "medicines.read"
	PermMedicinesUpdate = "medicines.update"

	PermBillingCreate = "billing.create"
	PermBillingRead   = "billing.read"
	PermBillingUpdate = "billing.update"

	PermReportsRead   = "reports.read"
	PermReportsExport = "reports.export"

	// PermRolesManage gates every Role Administration mutation.
	PermRolesManage = "roles.manage"
)

// Permission composes a `<resource>.<action>` permission string.
func Permission(resource, action string) string {
	return resource + "." + action
}
