// Package journey maps a user's milestone state to the single place
// they should be in the program, and decides which paths they may
// visit. Routing is a pure function of state so the same decision is
// reproducible on every surface.
package journey

import "strings"

type Phase string

const (
	PhaseInterview   Phase = "interview"
	PhaseOffer       Phase = "offer"
	PhaseCheckout    Phase = "checkout"
	PhasePurchased   Phase = "purchased"
	PhaseModuleTwo   Phase = "module2"
	PhaseModuleThree Phase = "module3"
	PhaseCoachLetter Phase = "coach_letter"
	PhaseComplete    Phase = "complete"
)

const (
	PathInterview   = "/interview"
	PathOffer       = "/offer"
	PathCheckout    = "/checkout"
	PathModuleOne   = "/modules/1"
	PathModuleTwo   = "/modules/2"
	PathModuleThree = "/modules/3"
	PathCoachLetter = "/letter"
	PathHome        = "/home"
)

// State is the milestone snapshot routing is computed from. All bool
// fields are monotone; PendingCheckoutID is the only field that can
// revert.
type State struct {
	InterviewCompleted   bool
	Purchased            bool
	ModuleOneCompleted   bool
	ModuleTwoCompleted   bool
	ModuleThreeCompleted bool
	CoachLetterViewed    bool
	PendingCheckoutID    string
}

type Routing struct {
	Phase Phase `json:"phase"`

	// CanonicalPath is where the phase nominally lives; ResumePath is
	// where the user should actually land. They differ only while a
	// checkout is pending.
	CanonicalPath string   `json:"canonical_path"`
	ResumePath    string   `json:"resume_path"`
	AllowedPaths  []string `json:"allowed_paths"`
}

// Compute resolves the user's phase by milestone priority. Earlier
// milestones dominate: a purchase recorded against an unfinished
// interview still routes to the interview.
func Compute(state State) Routing {
	r := Routing{}
	switch {
	case !state.InterviewCompleted:
		r.Phase = PhaseInterview
		r.CanonicalPath = PathInterview
	case !state.Purchased && state.PendingCheckoutID != "":
		r.Phase = PhaseCheckout
		r.CanonicalPath = PathOffer
		r.ResumePath = PathCheckout
	case !state.Purchased:
		r.Phase = PhaseOffer
		r.CanonicalPath = PathOffer
	case !state.ModuleOneCompleted:
		// A fresh purchase lands in module 1, the first guided module.
		r.Phase = PhasePurchased
		r.CanonicalPath = PathModuleOne
	case !state.ModuleTwoCompleted:
		r.Phase = PhaseModuleTwo
		r.CanonicalPath = PathModuleTwo
	case !state.ModuleThreeCompleted:
		r.Phase = PhaseModuleThree
		r.CanonicalPath = PathModuleThree
	case !state.CoachLetterViewed:
		r.Phase = PhaseCoachLetter
		r.CanonicalPath = PathCoachLetter
	default:
		r.Phase = PhaseComplete
		r.CanonicalPath = PathHome
	}
	if r.ResumePath == "" {
		r.ResumePath = r.CanonicalPath
	}
	r.AllowedPaths = allowedPaths(state, r)
	return r
}

// allowedPaths grows monotonically with the milestones: once a page is
// earned it stays visitable in every later phase, so back-navigation
// never re-gates. The pending checkout path is the one transient grant.
func allowedPaths(state State, r Routing) []string {
	out := []string{PathInterview}
	if state.InterviewCompleted {
		out = append(out, PathOffer)
	}
	if state.PendingCheckoutID != "" || state.Purchased {
		out = append(out, PathCheckout)
	}
	if state.Purchased {
		out = append(out, PathModuleOne)
	}
	if state.ModuleOneCompleted {
		out = append(out, PathModuleTwo)
	}
	if state.ModuleTwoCompleted {
		out = append(out, PathModuleThree)
	}
	if state.ModuleThreeCompleted {
		out = append(out, PathCoachLetter)
	}
	if state.CoachLetterViewed {
		out = append(out, PathHome)
	}
	if !contains(out, r.ResumePath) {
		out = append(out, r.ResumePath)
	}
	return out
}

type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

// Gate decides whether the user may visit path. Rejections redirect to
// the phase's canonical path.
func Gate(state State, path string) Decision {
	r := Compute(state)
	for _, allowed := range r.AllowedPaths {
		if pathMatches(path, allowed) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Redirect: r.CanonicalPath}
}

// pathMatches is segment-aware: /modules/2 matches /modules/2/extra
// but not /modules/20.
func pathMatches(path, allowed string) bool {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	if path == allowed {
		return true
	}
	return strings.HasPrefix(path, allowed+"/")
}

func contains(paths []string, p string) bool {
	for _, v := range paths {
		if v == p {
			return true
		}
	}
	return false
}
