package provisioning

import (
	"bytes"
	"html/template"
	"net/http"
)

var formPage = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>DoorGuard setup</title>
</head>
<body>
<h1>DoorGuard setup</h1>
<form method="post" action="/">
<p><label for="ssid">Network name</label><br><input id="ssid" name="ssid" required></p>
<p><label for="psw">Network password</label><br><input id="psw" name="psw" type="password" required></p>
<p><label for="id">Notification ID</label><br><input id="id" name="id" required></p>
<p><input type="submit" value="Save"></p>
</form>
</body>
</html>
`))

var messagePage = template.Must(template.New("message").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>DoorGuard setup</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

type message struct {
	Title   string
	Message string
}

// writePage renders tmpl into a buffer first so a template error never
// produces a half-written 200.
func writePage(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(buf.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, title, msg string) {
	writePage(w, status, messagePage, message{Title: title, Message: msg})
}
