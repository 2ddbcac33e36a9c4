// Package navigation holds the client's single source of truth for what is on screen.
package navigation

// Screen identifies one renderable screen. The set is closed.
type Screen string

const (
	Splash Screen = "splash"

	// auth
	Welcome        Screen = "welcome"
	SignIn         Screen = "sign_in"
	SignUp         Screen = "sign_up"
	ForgotPassword Screen = "forgot_password"

	// onboarding
	OnboardingEntry   Screen = "onboarding_entry"
	OnboardingGoals   Screen = "onboarding_goals"
	OnboardingBody    Screen = "onboarding_body"
	OnboardingHealth  Screen = "onboarding_health"
	OnboardingConsent Screen = "onboarding_consent"
	PlanSelection     Screen = "plan_selection"
	ApplicationStatus Screen = "application_status"

	// member tabs
	Dashboard Screen = "dashboard"
	Explore   Screen = "explore"
	Workouts  Screen = "workouts"
	Programs  Screen = "programs"
	Shop      Screen = "shop"
	Profile   Screen = "profile"

	// member details and flows
	WorkoutDetail   Screen = "workout_detail"
	ActiveWorkout   Screen = "active_workout"
	WorkoutComplete Screen = "workout_complete"
	ProgramDetail   Screen = "program_detail"
	CategoryVideos  Screen = "category_videos"
	Announcements   Screen = "announcements"
	Progress        Screen = "progress"
	Settings        Screen = "settings"
	EditProfile     Screen = "edit_profile"
	ChangePassword  Screen = "change_password"
	Membership      Screen = "membership"
	Cart            Screen = "cart"
	Checkout        Screen = "checkout"
	OrderHistory    Screen = "order_history"

	// admin
	AdminHome          Screen = "admin_home"
	AdminMembers       Screen = "admin_members"
	AdminApplications  Screen = "admin_applications"
	AdminExercises     Screen = "admin_exercises"
	AdminWorkouts      Screen = "admin_workouts"
	AdminPrograms      Screen = "admin_programs"
	AdminShop          Screen = "admin_shop"
	AdminAnnouncements Screen = "admin_announcements"
	AdminSettings      Screen = "admin_settings"
)

// DefaultLanding is where a transition lands when its target cannot be shown.
const DefaultLanding = Dashboard

var allScreens = []Screen{
	Splash,
	Welcome, SignIn, SignUp, ForgotPassword,
	OnboardingEntry, OnboardingGoals, OnboardingBody, OnboardingHealth, OnboardingConsent,
	PlanSelection, ApplicationStatus,
	Dashboard, Explore, Workouts, Programs, Shop, Profile,
	WorkoutDetail, ActiveWorkout, WorkoutComplete, ProgramDetail, CategoryVideos,
	Announcements, Progress, Settings, EditProfile, ChangePassword, Membership,
	Cart, Checkout, OrderHistory,
	AdminHome, AdminMembers, AdminApplications, AdminExercises, AdminWorkouts,
	AdminPrograms, AdminShop, AdminAnnouncements, AdminSettings,
}

var known = func() map[Screen]struct{} {
	m := make(map[Screen]struct{}, len(allScreens))
	for _, s := range allScreens {
		m[s] = struct{}{}
	}
	return m
}()

// Screens returns every known screen in declaration order.
func Screens() []Screen {
	out := make([]Screen, len(allScreens))
	copy(out, allScreens)
	return out
}

// Valid reports whether s belongs to the screen set.
func (s Screen) Valid() bool {
	_, ok := known[s]
	return ok
}

func (s Screen) String() string { return string(s) }

// requirement describes the auxiliary state a screen cannot render without.
type requirement struct {
	has      func(Aux) bool
	fallback Screen
}

var requirements = map[Screen]requirement{
	WorkoutDetail:   {has: func(a Aux) bool { return a.WorkoutID != nil }, fallback: Workouts},
	ActiveWorkout:   {has: func(a Aux) bool { return a.WorkoutID != nil }, fallback: Workouts},
	WorkoutComplete: {has: func(a Aux) bool { return a.LastWorkoutDuration != nil }, fallback: DefaultLanding},
	ProgramDetail:   {has: func(a Aux) bool { return a.ProgramID != nil }, fallback: Programs},
	CategoryVideos:  {has: func(a Aux) bool { return a.Category != nil }, fallback: Explore},
}
