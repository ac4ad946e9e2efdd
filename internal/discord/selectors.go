package discord

// CSS selectors for the Discord web client, tried in order.
var (
	authSelectors = []string{
		"a[href='/channels/@me']",
		"[class*='sidebar']",
		"[class*='guild']",
		"[data-list-id]",
	}

	loginFormSelectors = []string{
		"input[name='email']",
		"input[type='email']",
	}

	emailInputSelectors = []string{
		"input[name='email']",
		"input[type='email']",
	}

	passwordInputSelectors = []string{
		"input[name='password']",
		"input[type='password']",
	}

	loginButtonSelectors = []string{
		"button[type='submit']",
	}

	searchInputSelectors = []string{
		"input[placeholder*='Search']",
		"input[placeholder*='поиск']",
		"input[type='text'][aria-label*='Search']",
		"div[class*='search'] input",
	}

	searchResultSelectors = []string{
		"[class*='result']",
		"[class*='member']",
		"[class*='user']",
		"[class*='searchResult']",
		"div[class*='user']",
	}

	usernameSelectors = []string{
		"[class*='username']",
		"[class*='nameTag']",
		"[data-user-id]",
		"div[class*='user'] span",
		"[class*='nameTagText']",
	}
)
