package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quasar/craftlauncher/internal/auth"
	"github.com/quasar/craftlauncher/internal/core"
)

// AuthModel displays the device-code sign-in flow. The pipeline itself
// runs in the app layer; this view only renders its progress.
type AuthModel struct {
	width  int
	height int

	state           auth.State
	userCode        string
	verificationURI string
	err             error
	account         *core.Account
	copied          bool

	spinner spinner.Model
}

func NewAuthModel() *AuthModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	return &AuthModel{
		state:   auth.StateIdle,
		spinner: s,
	}
}

func (m *AuthModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *AuthModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *AuthModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "o":
			if m.userCode != "" && m.state == auth.StatePollingToken {
				openBrowser(m.verificationURI)
			}
		case "c":
			if m.userCode != "" && m.state == auth.StatePollingToken {
				copyToClipboard(m.userCode)
				m.copied = true
				return m, tea.Tick(2*time.Second, func(_ time.Time) tea.Msg { return clearCopiedMsg{} })
			}
		case "enter":
			if m.state == auth.StateAuthenticated {
				return m, func() tea.Msg { return NavigateToAccounts{} }
			}
		}

	case AuthProgress:
		m.state = msg.State
		return m, nil

	case AuthCodeReady:
		m.userCode = msg.UserCode
		m.verificationURI = msg.VerificationURI
		// Auto-copy the code and open the browser shortly after, so the
		// user lands on the page with the code on the clipboard.
		copyToClipboard(msg.UserCode)
		m.copied = true
		return m, tea.Batch(
			tea.Tick(1*time.Second, func(_ time.Time) tea.Msg { return openBrowserMsg{} }),
			tea.Tick(3*time.Second, func(_ time.Time) tea.Msg { return clearCopiedMsg{} }),
		)

	case AuthDone:
		if msg.Error != nil {
			m.state = auth.StateFailed
			m.err = msg.Error
			return m, nil
		}
		m.state = auth.StateAuthenticated
		m.account = msg.Account
		return m, tea.Tick(2*time.Second, func(_ time.Time) tea.Msg {
			return NavigateToAccounts{}
		})

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openBrowserMsg:
		if m.verificationURI != "" {
			openBrowser(m.verificationURI)
		}
		return m, nil

	case clearCopiedMsg:
		m.copied = false
		return m, nil
	}

	return m, nil
}

func (m *AuthModel) View() string {
	doc := lipgloss.NewStyle().Padding(2, 4).Width(m.width).Height(m.height)

	var content string

	switch m.state {
	case auth.StateIdle, auth.StateAwaitingUserCode:
		content = fmt.Sprintf("%s Contacting Microsoft...", m.spinner.View())

	case auth.StatePollingToken:
		if m.userCode == "" {
			content = "Error: No device code."
			break
		}

		codeText := m.userCode
		if m.copied {
			codeText += "  ✓ Copied!"
		} else {
			codeText += "  📋"
		}

		box := FocusedBoxStyle.Render(codeText)

		actionText := "[c] Copy code"
		if m.copied {
			actionText = "[✓] Copied!"
		}

		content = fmt.Sprintf(`
%s

To sign in, use a web browser to open the page:
%s

And enter the code:
%s

%s Waiting for you to sign in...
%s • [o] Open browser • [esc] Cancel
`, "Microsoft Authentication",
			lipgloss.NewStyle().Foreground(ColorAccent).Render(m.verificationURI),
			box,
			m.spinner.View(),
			actionText)

	case auth.StateAuthenticated:
		content = SuccessStyle.Render(fmt.Sprintf("✅ Successfully logged in as %s!", m.account.Username)) +
			"\n\nRedirecting..."

	case auth.StateFailed:
		content = ErrorStyle.Render(fmt.Sprintf("❌ %s", errorText(m.err))) + "\n\n[Esc] Back"

	default:
		// The token-exchange stages between sign-in and success.
		content = fmt.Sprintf("%s %s...", m.spinner.View(), m.state)
	}

	return doc.Render(content)
}

// errorText turns a pipeline error into a short user-facing line
func errorText(err error) string {
	switch core.ErrorCode(err) {
	case core.CodeDeviceCodeExpired:
		return "The sign-in code expired. Please try again."
	case core.CodeAccessDenied:
		return "Sign-in was declined."
	case core.CodeNotEntitled:
		return "This account does not own Minecraft."
	case core.CodeNoProfile:
		return "This account has no Minecraft profile yet. Create one at minecraft.net first."
	case core.CodeXboxAuthDenied:
		return fmt.Sprintf("Xbox sign-in refused: %v", err)
	case core.CodeTransientNetwork:
		return "Network trouble reaching the sign-in servers. Please try again."
	default:
		if err == nil {
			return "Unknown error"
		}
		return err.Error()
	}
}

// Messages
type clearCopiedMsg struct{}
type openBrowserMsg struct{}

func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		// handle error?
	}
}

func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		// Try wl-copy first, then xclip
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	default:
		return fmt.Errorf("unsupported platform")
	}

	in, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := in.Write([]byte(text)); err != nil {
		return err
	}
	if err := in.Close(); err != nil {
		return err
	}

	return cmd.Wait()
}
