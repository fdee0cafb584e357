package apiv1

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

const productName = "CRM Gmail"

var connectPage = template.Must(template.New("connect").Parse(connectHTML))

type connectPageData struct {
	Product string
	Title   string
	Message string
	Failed  bool
}

func renderErrorPage(c echo.Context, message string) error {
	return renderConnectPage(c, http.StatusBadRequest, connectPageData{
		Title:   "Gmail connection failed",
		Message: message,
		Failed:  true,
	})
}

func renderSuccessPage(c echo.Context) error {
	return renderConnectPage(c, http.StatusOK, connectPageData{
		Title:   "Gmail connected",
		Message: "Your mailbox is linked. Choose which labels to sync from the CRM settings page.",
	})
}

func renderConnectPage(c echo.Context, status int, data connectPageData) error {
	data.Product = productName
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return connectPage.Execute(c.Response(), data)
}

const connectHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>{{.Title}} - {{.Product}}</title>
	<style>
		body { font-family: system-ui, sans-serif; margin: 0; min-height: 100vh; display: grid; place-items: center; background: #f6f7f9; color: #1f2328; }
		main { max-width: 420px; margin: 16px; padding: 40px 32px; background: #fff; border-radius: 10px; border: 1px solid #d0d7de; text-align: center; }
		h1 { font-size: 22px; margin: 0 0 12px; }
		h1.ok { color: #1a7f37; }
		h1.failed { color: #cf222e; }
		p { margin: 0 0 12px; line-height: 1.5; }
		small { color: #656d76; }
	</style>
</head>
<body>
	<main>
		<h1 class="{{if .Failed}}failed{{else}}ok{{end}}">{{.Title}}</h1>
		<p>{{.Message}}</p>
		<small>You can close this window.</small>
	</main>
</body>
</html>`
