package email

import (
	"fmt"
	"html"

	"stockroom/internal/models"
)

func generateWelcomeHTML(user *models.User) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Welcome to Stockroom</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f8f9fa;
        }
        .container {
            background-color: white;
            padding: 40px;
            border-radius: 12px;
        }
        .logo {
            font-size: 28px;
            font-weight: bold;
            color: #2d5e3e;
            text-align: center;
        }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e9ecef;
            font-size: 14px;
            color: #6c757d;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="logo">Stockroom</div>
        <p>Your account is ready. Sign in to start tracking your inventory.</p>
        <div class="footer">
            <p>This email was sent to %s because it was used to create a Stockroom account.</p>
        </div>
    </div>
</body>
</html>`, html.EscapeString(user.Email))
}

func generateWelcomeText(user *models.User) string {
	return fmt.Sprintf(`Welcome to Stockroom!

Your account is ready. Sign in to start tracking your inventory.

---
This email was sent to %s because it was used to create a Stockroom account.`, user.Email)
}
