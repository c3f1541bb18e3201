package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
)

// RegisterBuiltins 注册内置任务处理函数（对外导出）
// 作为服务进程预装的处理函数库，业务方可以继续追加自己的函数
func RegisterBuiltins(registry *task.FunctionRegistry) {
	registry.MustRegister("echo", Echo, "原样输出参数")
	registry.MustRegister("sleep", Sleep, "休眠指定秒数，支持取消")
	registry.MustRegister("shell", Shell, "执行shell命令并返回输出")
	registry.MustRegister("http_fetch", HTTPFetch, "抓取网页并按CSS选择器提取文本")
}

// Echo 原样输出参数
func Echo(ctx *task.Context) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(ctx.Params))
	for k, v := range ctx.Params {
		out[k] = v
	}
	return out, nil
}

// Sleep 休眠指定秒数
// 参数: seconds (数值，默认1)
func Sleep(ctx *task.Context) (map[string]interface{}, error) {
	seconds, ok := ctx.GetParamFloat("seconds")
	if !ok || seconds <= 0 {
		seconds = 1
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return map[string]interface{}{"slept_seconds": seconds}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shell 执行shell命令
// 参数: command (必填)
func Shell(ctx *task.Context) (map[string]interface{}, error) {
	command := ctx.GetParamString("command")
	if command == "" {
		return nil, fmt.Errorf("缺少参数 command")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := map[string]interface{}{
		"stdout": strings.TrimRight(stdout.String(), "\n"),
		"stderr": strings.TrimRight(stderr.String(), "\n"),
	}
	if err != nil {
		return nil, fmt.Errorf("命令执行失败: %w, stderr=%s", err, stderr.String())
	}
	if exitCode := cmd.ProcessState.ExitCode(); exitCode != 0 {
		return nil, fmt.Errorf("命令退出码非零: %d", exitCode)
	}
	out["exit_code"] = 0
	return out, nil
}

// HTTPFetch 抓取网页并提取内容
// 参数: url (必填), selector (可选CSS选择器，缺省返回title)
func HTTPFetch(ctx *task.Context) (map[string]interface{}, error) {
	url := ctx.GetParamString("url")
	if url == "" {
		return nil, fmt.Errorf("缺少参数 url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP状态码异常: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	out := map[string]interface{}{
		"url":    url,
		"status": resp.StatusCode,
		"title":  strings.TrimSpace(doc.Find("title").Text()),
	}

	if selector := ctx.GetParamString("selector"); selector != "" {
		var texts []interface{}
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				texts = append(texts, text)
			}
		})
		out["matches"] = texts
		out["match_count"] = len(texts)
	}
	return out, nil
}
