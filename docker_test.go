package booklog_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

// lastStage はDockerfileの最後のFROM行を返す。
func lastStage(dockerfile string) string {
	var last string
	for _, line := range strings.Split(dockerfile, "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "FROM ") {
			last = line
		}
	}
	return last
}

func TestDockerfile(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.HasPrefix(lastStage(content), "FROM gcr.io/distroless/") {
		t.Errorf("runtime stage should be distroless, got %q", lastStage(content))
	}

	for _, want := range []string{
		"FROM golang:",
		"-o /out/booklog ./cmd/booklog",
		`ENTRYPOINT ["/usr/local/bin/booklog"]`,
		`CMD ["serve"]`,
		// シェルがないためヘルスチェックもサブコマンドで行う
		`"healthcheck"`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Dockerfile should contain %q", want)
		}
	}
}

func TestDockerCompose(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, want := range []string{
		"image: postgres:",
		"  db:", "  redis:", "  rabbitmq:",
		"  migrate:", "  api:", "  worker:",
		`command: ["migrate"]`,
		`command: ["serve"]`,
		`command: ["worker"]`,
		// DBとブローカーは外部に出られない内部ネットワークに置く
		"internal: true",
		"external:",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("docker-compose.yml should contain %q", want)
		}
	}
}
