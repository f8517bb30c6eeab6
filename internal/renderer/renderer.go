// Package renderer 管理无头浏览器进程并把 HTML 渲染为 PDF。
// 浏览器进程启动昂贵，跨任务复用；生命周期通过显式 Close 管理，
// 而不是散落的模块级可变变量。
package renderer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"droplab/internal/layout"
)

const pageTimeout = 30 * time.Second

// Manager 持有一个懒加载的共享浏览器实例。
// Render 可以被多个 goroutine 调用；实例损坏时下次调用会重新拉起。
type Manager struct {
	mu      sync.Mutex
	browser *rod.Browser
	launch  *launcher.Launcher
	closed  bool
}

// NewManager 构造渲染管理器，不立即启动浏览器。
func NewManager() *Manager {
	return &Manager{}
}

// Render 在无头浏览器中渲染 HTML 并按目标打印格式导出 PDF 字节。
func (m *Manager) Render(ctx context.Context, htmlContent string, format layout.Format) ([]byte, error) {
	browser, err := m.acquire()
	if err != nil {
		return nil, err
	}

	data, err := renderPDF(ctx, browser, htmlContent, format)
	if err != nil {
		// 连接可能已失效，丢弃实例，下次调用重新启动。
		m.invalidate(browser)
		return nil, err
	}
	return data, nil
}

// Close 关闭浏览器进程并清理临时文件。之后的 Render 调用会失败。
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	if m.launch != nil {
		m.launch.Cleanup()
	}
	m.browser = nil
	m.launch = nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (m *Manager) acquire() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("renderer manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	launch := launcher.New().
		Headless(true).
		NoSandbox(true)

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	m.browser = browser
	m.launch = launch
	return browser, nil
}

func (m *Manager) invalidate(browser *rod.Browser) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != browser {
		return
	}
	_ = m.browser.Close()
	if m.launch != nil {
		m.launch.Cleanup()
	}
	m.browser = nil
	m.launch = nil
}

func renderPDF(ctx context.Context, browser *rod.Browser, htmlContent string, format layout.Format) (_ []byte, err error) {
	page, err := browser.Timeout(pageTimeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Context(ctx).Timeout(pageTimeout)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, fmt.Errorf("set emulated media to print: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        float64Ptr(format.WidthIn),
		PaperHeight:       float64Ptr(format.HeightIn),
		MarginTop:         float64Ptr(0),
		MarginBottom:      float64Ptr(0),
		MarginLeft:        float64Ptr(0),
		MarginRight:       float64Ptr(0),
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
