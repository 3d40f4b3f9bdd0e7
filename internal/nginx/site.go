// Package nginx renders and deploys the reverse-proxy site configuration.
package nginx

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"
)

// Site describes one reverse-proxy server block.
type Site struct {
	Name           string
	ServerName     string
	ListenPort     int
	BackendHost    string
	BackendPort    int
	TimeoutSeconds int
	MaxBodySize    string
	AccessLog      string
	ErrorLog       string
}

var siteTemplate = template.Must(template.New("site").Parse(`server {
    listen {{.ListenPort}};
    server_name {{.ServerName}};

    access_log {{.AccessLog}};
    error_log {{.ErrorLog}};

    client_max_body_size {{.MaxBodySize}};

    location / {
        proxy_pass http://{{.BackendHost}}:{{.BackendPort}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;

        proxy_connect_timeout {{.TimeoutSeconds}}s;
        proxy_send_timeout {{.TimeoutSeconds}}s;
        proxy_read_timeout {{.TimeoutSeconds}}s;
    }
}
`))

// Render produces the server block for s.
func (s Site) Render() ([]byte, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("site name is required")
	}
	if s.BackendPort == 0 {
		return nil, fmt.Errorf("site %s: backend port is required", s.Name)
	}
	withDefaults := s
	if withDefaults.ServerName == "" {
		withDefaults.ServerName = "_"
	}
	if withDefaults.ListenPort == 0 {
		withDefaults.ListenPort = 80
	}
	if withDefaults.BackendHost == "" {
		withDefaults.BackendHost = "127.0.0.1"
	}
	if withDefaults.TimeoutSeconds == 0 {
		withDefaults.TimeoutSeconds = 300
	}
	if withDefaults.MaxBodySize == "" {
		withDefaults.MaxBodySize = "500M"
	}
	if withDefaults.AccessLog == "" {
		withDefaults.AccessLog = filepath.Join("/var/log/nginx", s.Name+"_access.log")
	}
	if withDefaults.ErrorLog == "" {
		withDefaults.ErrorLog = filepath.Join("/var/log/nginx", s.Name+"_error.log")
	}

	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, withDefaults); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
