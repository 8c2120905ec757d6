package domain

// Action is an operation gated by the authorization policy.
type Action int

const (
	ActionViewCatalog Action = iota
	ActionManageBooks
	ActionViewLoan
	ActionCreateLoan
	ActionReturnLoan
	ActionDeleteLoan
	ActionViewDashboard
	ActionManageUsers
)

func (a Action) String() string {
	switch a {
	case ActionViewCatalog:
		return "view catalog"
	case ActionManageBooks:
		return "manage books"
	case ActionViewLoan:
		return "view loan"
	case ActionCreateLoan:
		return "create loan"
	case ActionReturnLoan:
		return "return loan"
	case ActionDeleteLoan:
		return "delete loan"
	case ActionViewDashboard:
		return "view dashboard"
	case ActionManageUsers:
		return "manage users"
	}
	return "unknown action"
}

// Authorize evaluates the policy table for actor performing action on a
// record owned by ownerID (0 when the action has no target record). Loan
// return and delete follow the owner-or-librarian variant.
func Authorize(actor *Actor, action Action, ownerID int64) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	var allowed bool
	switch actor.Role {
	case RoleLibrarian:
		allowed = librarianMay(action)
	case RoleMember:
		allowed = memberMay(action, actor.UserID == ownerID)
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func librarianMay(action Action) bool {
	switch action {
	case ActionViewCatalog, ActionManageBooks, ActionViewLoan, ActionCreateLoan,
		ActionReturnLoan, ActionDeleteLoan, ActionViewDashboard, ActionManageUsers:
		return true
	}
	return false
}

func memberMay(action Action, owns bool) bool {
	switch action {
	case ActionViewCatalog, ActionCreateLoan, ActionViewDashboard:
		return true
	case ActionViewLoan, ActionReturnLoan, ActionDeleteLoan:
		return owns
	case ActionManageBooks, ActionManageUsers:
		return false
	}
	return false
}

// VisibleLoanScope restricts a loan listing to what actor may enumerate. It
// runs before filtering and pagination so totals reflect the scoped set:
// librarians see everything, members only their own loans whatever user
// filter they asked for.
func VisibleLoanScope(actor *Actor, f LoanFilter) (LoanFilter, error) {
	if actor == nil {
		return f, ErrUnauthenticated
	}
	switch actor.Role {
	case RoleLibrarian:
	case RoleMember:
		f.UserID = actor.UserID
	default:
		return f, ErrForbidden
	}
	return f, nil
}
