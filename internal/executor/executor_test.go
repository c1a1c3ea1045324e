package executor

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
)

func newTestExecutor() *Executor {
	return New(config.ExecutorConfig{Timeout: 2 * time.Second, MaxOutputBytes: 1024})
}

func TestExecute_RefusesEmptyAndFailureText(t *testing.T) {
	e := newTestExecutor()
	for _, code := range []string{"", "   \n", "❌ prior error", "⚠️ No suggestion returned.", "Code suggestion error: boom"} {
		out := e.Execute(context.Background(), code)
		require.False(t, out.OK(), code)
		assert.Equal(t, model.KindEmptyInput, out.Err.Kind)
		assert.Equal(t, "⚠️ Cannot execute: this is not valid Go code.", out.Display())
	}
}

func TestExecute_CapturesOutput(t *testing.T) {
	out := newTestExecutor().Execute(context.Background(), `fmt.Println("hello")`)
	require.True(t, out.OK(), out.Display())
	assert.Equal(t, "hello", out.Text)
}

func TestExecute_PreImportsAllowedPackages(t *testing.T) {
	code := "x := strings.ToUpper(\"go\")\nfmt.Println(x, strconv.Itoa(42), math.Sqrt(16))"
	out := newTestExecutor().Execute(context.Background(), code)
	require.True(t, out.OK(), out.Display())
	assert.Equal(t, "GO 42 4", out.Text)
}

func TestExecute_StripsMarkdownFence(t *testing.T) {
	out := newTestExecutor().Execute(context.Background(), "```go\nfmt.Println(1 + 2)\n```")
	require.True(t, out.OK(), out.Display())
	assert.Equal(t, "3", out.Text)
}

func TestExecute_NoOutput(t *testing.T) {
	out := newTestExecutor().Execute(context.Background(), "x := 1\n_ = x")
	require.True(t, out.OK(), out.Display())
	assert.Equal(t, NoOutputMessage, out.Text)
}

func TestExecute_DisallowedImportFails(t *testing.T) {
	code := "import \"os\"\nfmt.Println(os.Getenv(\"HOME\"))"
	out := newTestExecutor().Execute(context.Background(), code)
	require.False(t, out.OK())
	assert.Equal(t, model.KindExecution, out.Err.Kind)
	assert.True(t, strings.HasPrefix(out.Display(), "❌ Execution error:"))
}

func TestExecute_PanicIsExecutionFailure(t *testing.T) {
	out := newTestExecutor().Execute(context.Background(), `panic("boom")`)
	require.False(t, out.OK())
	assert.Equal(t, model.KindExecution, out.Err.Kind)
}

func TestExecute_CompileErrorIsExecutionFailure(t *testing.T) {
	out := newTestExecutor().Execute(context.Background(), `print("not go" +)`)
	require.False(t, out.OK())
	assert.Equal(t, model.KindExecution, out.Err.Kind)
}

func TestExecute_Timeout(t *testing.T) {
	e := New(config.ExecutorConfig{Timeout: 100 * time.Millisecond})

	start := time.Now()
	out := e.Execute(context.Background(), "for {\n}")
	require.False(t, out.OK())
	assert.Equal(t, model.KindExecution, out.Err.Kind)
	assert.Contains(t, out.Err.Message, "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecute_OutputIsCapped(t *testing.T) {
	e := New(config.ExecutorConfig{Timeout: 2 * time.Second, MaxOutputBytes: 10})

	out := e.Execute(context.Background(), "for i := 0; i < 100; i++ {\nfmt.Print(\"abcdef\")\n}")
	require.True(t, out.OK(), out.Display())
	assert.Equal(t, "abcdefabcd"+truncatedSuffix, out.Text)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "a := 1", StripFences("```\na := 1\n```"))
	assert.Equal(t, "a := 1\nb := 2", StripFences("```golang\na := 1\nb := 2\n```\n"))
	assert.Equal(t, "plain", StripFences("plain"))

	reply := "Here is a snippet:\n\n```go\nfmt.Println(\"first\")\n```\n\nOr:\n```go\nfmt.Println(\"second\")\n```\nHope it helps."
	assert.Equal(t, `fmt.Println("first")`, StripFences(reply))
}

func TestExecute_FenceInsideProse(t *testing.T) {
	reply := "Sure! Try this:\n```go\nfmt.Println(6 * 7)\n```\nIt prints the answer."
	out := newTestExecutor().Execute(context.Background(), reply)
	require.True(t, out.OK(), out.Display())
	assert.Equal(t, "42", out.Text)
}

func TestExecute_RefusesGoStatements(t *testing.T) {
	e := New(config.ExecutorConfig{Timeout: 200 * time.Millisecond})
	before := runtime.NumGoroutine()

	for _, code := range []string{
		"go func(){ for {} }()\nfmt.Println(\"ok\")",
		"```go\nfunc spin() { for {} }\ngo spin()\n```",
	} {
		out := e.Execute(context.Background(), code)
		require.False(t, out.OK(), code)
		assert.Equal(t, model.KindExecution, out.Err.Kind)
		assert.Contains(t, out.Err.Message, "go statements are not allowed")
	}

	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestSpawnsGoroutine(t *testing.T) {
	assert.True(t, spawnsGoroutine("go f()"))
	assert.True(t, spawnsGoroutine("x := 1\n\tgo func() {}()"))
	assert.False(t, spawnsGoroutine(`fmt.Println("go home")`))
	assert.False(t, spawnsGoroutine("// go f()\nx := 1"))
	assert.False(t, spawnsGoroutine("gopher := 1\n_ = gopher"))
	assert.False(t, spawnsGoroutine("`go raw`"))
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = b.Write([]byte("cdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd"+truncatedSuffix, b.String())
}
