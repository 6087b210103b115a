package rbac

// Page identifiers gated by the page guard.
const (
	PageDashboard    = "index.html"
	PagePatients     = "patients.html"
	PageTriage       = "triage.html"
	PageDoctors      = "doctors.html"
	PageLab          = "lab.html"
	PagePharmacy     = "pharmacy.html"
	PageAppointments = "appointments.html"
	PageBilling      = "billing.html"
	PageReports      = "reports.html"
	PageAdmin        = "admin.html"
)

// NavItem is a single entry of the navigation menu.
type NavItem struct {
	Page  string `json:"page"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

var navigation = []NavItem{
	{Page: PageDashboard, Title: "Dashboard", Path: "/"},
	{Page: PagePatients, Title: "Patients", Path: "/pages/patients.html"},
	{Page: PageTriage, Title: "Triage", Path: "/pages/triage.html"},
	{Page: PageDoctors, Title: "Doctors", Path: "/pages/doctors.html"},
	{Page: PageLab, Title: "Laboratory", Path: "/pages/lab.html"},
	{Page: PagePharmacy, Title: "Pharmacy", Path: "/pages/pharmacy.html"},
	{Page: PageAppointments, Title: "Appointments", Path: "/pages/appointments.html"},
	{Page: PageBilling, Title: "Billing", Path: "/pages/billing.html"},
	{Page: PageReports, Title: "Reports", Path: "/pages/reports.html"},
	{Page: PageAdmin, Title: "Admin", Path: "/admin/assignments"},
}

// Navigation returns the full navigation catalogue in menu order.
func Navigation() []NavItem {
	out := make([]NavItem, len(navigation))
	copy(out, navigation)
	return out
}

// IsKnownPage reports whether id names a page in the catalogue.
func IsKnownPage(id string) bool {
	_, ok := navItem(id)
	return ok
}

// PagePath returns the URL path serving the page, or "/" when unknown.
func PagePath(id string) string {
	if item, ok := navItem(id); ok {
		return item.Path
	}
	return "/"
}

func navItem(id string) (NavItem, bool) {
	for _, item := range navigation {
		if item.Page == id {
			return item, true
		}
	}
	return NavItem{}, false
}
