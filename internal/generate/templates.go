package generate

import (
	"github.com/google/uuid"
	"github.com/storyline-qa/storyline/internal/model"
)

// stepsFor builds the canned step sequence for the story's category. Every
// template starts with a navigation to the story's primary target so that
// the first step of any URL-carrying story points at that URL.
func stepsFor(st story) []model.TestStep {
	var steps []model.TestStep

	switch st.category {
	case "quote":
		steps = quoteSteps(st)
	case "login":
		steps = loginSteps(st)
	case "claim":
		steps = claimSteps(st)
	case "payment":
		steps = paymentSteps(st)
	default:
		steps = genericSteps(st)
	}

	for i := range steps {
		steps[i].ID = uuid.NewString()
		steps[i].Order = i + 1
		steps[i].Enabled = true
	}

	return steps
}

func navigateStep(target string) model.TestStep {
	return model.TestStep{
		Action:      model.ActionNavigate,
		Target:      target,
		Description: "Open the application",
		Expected:    "page is displayed",
	}
}

func loginSteps(st story) []model.TestStep {
	username := "qa@example.com"
	if st.email != "" {
		username = st.email
	}

	password := "Secret123!"
	if st.password != "" {
		password = st.password
	}

	return []model.TestStep{
		navigateStep(st.target()),
		{
			Action:      model.ActionEnterText,
			Target:      "#username",
			Description: "Enter the username",
			Parameters:  map[string]model.Value{"value": model.String(username)},
		},
		{
			Action:      model.ActionEnterText,
			Target:      "#password",
			Description: "Enter the password",
			Parameters:  map[string]model.Value{"value": model.String(password)},
		},
		{
			Action:      model.ActionClick,
			Target:      "button[type=submit]",
			Description: "Submit the login form",
			Expected:    "the form is submitted",
		},
		{
			Action:      model.ActionVerify,
			Target:      ".dashboard",
			Description: "Verify the user is signed in",
			Expected:    "dashboard is visible",
			Parameters:  map[string]model.Value{"expected": model.String("dashboard is visible")},
			Screenshot:  true,
		},
	}
}

func quoteSteps(st story) []model.TestStep {
	return []model.TestStep{
		navigateStep(st.target()),
		{
			Action:      model.ActionClick,
			Target:      "#get-quote",
			Description: "Start a new quote",
		},
		{
			Action:      model.ActionEnterText,
			Target:      "#coverage-amount",
			Description: "Enter the requested coverage",
			Parameters:  map[string]model.Value{"value": model.String("50000")},
		},
		{
			Action:      model.ActionClick,
			Target:      "#calculate",
			Description: "Calculate the quote",
		},
		{
			Action:      model.ActionVerify,
			Target:      ".quote-result",
			Description: "Verify a quote is displayed",
			Expected:    "quote amount is shown",
			Parameters:  map[string]model.Value{"expected": model.String("quote amount is shown")},
			Screenshot:  true,
		},
	}
}

func claimSteps(st story) []model.TestStep {
	return []model.TestStep{
		navigateStep(st.target()),
		{
			Action:      model.ActionClick,
			Target:      "#file-claim",
			Description: "Start filing a claim",
		},
		{
			Action:      model.ActionEnterText,
			Target:      "#claim-description",
			Description: "Describe the claim",
			Parameters:  map[string]model.Value{"value": model.String("Generated claim description")},
		},
		{
			Action:      model.ActionClick,
			Target:      "#submit-claim",
			Description: "Submit the claim",
		},
		{
			Action:      model.ActionVerify,
			Target:      ".claim-confirmation",
			Description: "Verify the claim was submitted",
			Expected:    "a claim reference number is shown",
			Parameters:  map[string]model.Value{"expected": model.String("a claim reference number is shown")},
		},
	}
}

func paymentSteps(st story) []model.TestStep {
	return []model.TestStep{
		navigateStep(st.target()),
		{
			Action:      model.ActionClick,
			Target:      "#payments",
			Description: "Open the payments section",
		},
		{
			Action:      model.ActionEnterText,
			Target:      "#amount",
			Description: "Enter the payment amount",
			Parameters:  map[string]model.Value{"value": model.String("100.00")},
		},
		{
			Action:      model.ActionClick,
			Target:      "#pay",
			Description: "Confirm the payment",
		},
		{
			Action:      model.ActionVerify,
			Target:      ".payment-confirmation",
			Description: "Verify the payment is confirmed",
			Expected:    "payment confirmation is shown",
			Parameters:  map[string]model.Value{"expected": model.String("payment confirmation is shown")},
		},
	}
}

// genericSteps is the fallback when no keyword matched: a single
// verification that the page (or endpoint) responds.
func genericSteps(st story) []model.TestStep {
	target := st.target()
	if len(st.urls) == 0 {
		target = "page"
	}

	return []model.TestStep{
		{
			Action:      model.ActionVerify,
			Target:      target,
			Description: "Verify the page loads",
			Expected:    "the page loads successfully",
			Parameters:  map[string]model.Value{"expected": model.String("the page loads successfully")},
		},
	}
}
