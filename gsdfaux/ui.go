//go:build !tinygo && cgo

package gsdfaux

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glrender"
)

func ui(root sdfmarch.Node, scene sdfmarch.LightFinder, cfg UIConfig) error {
	bb := root.Bounds()
	diag := float64(ms3.Norm(bb.Size()))
	target := ms3.Scale(0.5, ms3.Add(bb.Min, bb.Max))
	window, term, err := startGLFW(cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer term()
	kernel, err := NewGLKernel(GLConfig{March: cfg.March})
	if err != nil {
		return err
	}
	defer kernel.Delete()
	stage := glrender.NewStage(glrender.StageConfig{Kernel: kernel})

	width, height := window.GetFramebufferSize()
	screen := &Screen{Width: width, Height: height}
	background := NewBackground(width, height, nil)
	camera := &sdfmarch.Camera{
		FieldOfView: cfg.FieldOfView,
		Aspect:      float32(width) / float32(height),
	}
	var lights sdfmarch.LightResolver

	minZoom := diag * 0.00001
	maxZoom := diag * 10
	var (
		yaw              float64
		pitch            float64 = 0.3
		lastMouseX       float64
		lastMouseY       float64
		camDist          float64 = 2 * diag
		firstMouseMove           = true
		isMousePressed           = false
		yawSensitivity           = 0.005
		pitchSensitivity         = 0.005
		refresh                  = true
	)
	window.SetCursorPosCallback(func(w *glfw.Window, xpos float64, ypos float64) {
		if !isMousePressed {
			return
		}
		refresh = true
		if firstMouseMove {
			lastMouseX = xpos
			lastMouseY = ypos
			firstMouseMove = false
		}
		yaw += (xpos - lastMouseX) * yawSensitivity
		pitch += (ypos - lastMouseY) * pitchSensitivity
		maxPitch := math.Pi/2 - 0.01
		pitch = math.Max(-maxPitch, math.Min(maxPitch, pitch))
		lastMouseX = xpos
		lastMouseY = ypos
	})

	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		refresh = true
		camDist -= yoff * (camDist*.1 + .01)
		camDist = math.Max(minZoom, math.Min(maxZoom, camDist))
	})

	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		refresh = true
		if action == glfw.Press {
			isMousePressed = true
			firstMouseMove = true
			window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		} else if action == glfw.Release {
			isMousePressed = false
			window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
	})

	ctx := cfg.Context
	for !window.ShouldClose() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		dir := ms3.Vec{
			X: float32(math.Cos(pitch) * math.Sin(yaw)),
			Y: float32(math.Sin(pitch)),
			Z: float32(math.Cos(pitch) * math.Cos(yaw)),
		}
		eye := ms3.Add(target, ms3.Scale(float32(camDist), dir))
		camera.CameraToWorld = sdfmarch.LookAt(eye, target, ms3.Vec{Y: 1})

		gl.ClearColor(0, 0, 0, 1)
		gl.Clear(gl.COLOR_BUFFER_BIT)
		stage.Render(screen, background, sdfmarch.FrameInput{
			Camera:    camera,
			Light:     lights.Lookup(scene),
			MainColor: cfg.MainColor,
			Root:      root,
		})
		window.SwapBuffers()

		// Redraw at most 60 times a second and only on input or while no light has been found,
		// since the scene may gain one.
		for {
			time.Sleep(time.Second / 60)
			glfw.PollEvents()
			if refresh || window.ShouldClose() || !lights.Cached() {
				refresh = false
				break
			}
		}
	}
	return nil
}

func startGLFW(width, height int) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	window, err = glfw.CreateWindow(width, height, "sdfmarch viewer", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}
