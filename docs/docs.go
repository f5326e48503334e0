// Package docs holds the OpenAPI document generated by swag from the
// handler annotations. Regenerate with `swag init -g cmd/artifyd/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "artifyd maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "description": "Static liveness payload with the loaded model and device.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.RootResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Backend version and accelerator capability flags.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/generate/text2img": {
            "get": {
                "description": "Generates an image from a prompt and streams it as PNG.",
                "produces": ["image/png"],
                "tags": ["generate"],
                "summary": "Text to image",
                "parameters": [
                    {"type": "string", "description": "Text prompt", "name": "prompt", "in": "query", "required": true},
                    {"type": "number", "default": 0.9, "description": "Temperature (0.1-1.0)", "name": "temperature", "in": "query"},
                    {"type": "integer", "default": 512, "description": "Width (64-1024)", "name": "width", "in": "query"},
                    {"type": "integer", "default": 512, "description": "Height (64-1024)", "name": "height", "in": "query"},
                    {"type": "integer", "default": 7, "description": "Guidance scale (1-10)", "name": "scale", "in": "query"},
                    {"type": "integer", "default": -1, "description": "Seed, -1 for random", "name": "seed", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Sampling steps (1-100)", "name": "sampling_steps", "in": "query"},
                    {"type": "integer", "default": 50, "description": "Inference steps (1-100)", "name": "num_inference_steps", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/generate/img2img": {
            "post": {
                "description": "Transforms a base64 source image guided by a prompt. The source is converted to RGB and resized to 768x512.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Image to image",
                "parameters": [
                    {"description": "Generation request", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ImageToImageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ImageToImageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "Invalid image format"}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "backend": {"type": "string", "example": "sdapi"},
                "backend_version": {"type": "string", "example": "2.5.1+cu124"},
                "cuda_available": {"type": "boolean"},
                "device": {"type": "string", "example": "cuda"},
                "model_loaded": {"type": "boolean", "example": true},
                "mps_available": {"type": "boolean"},
                "status": {"type": "string", "example": "healthy"}
            }
        },
        "types.ImageToImageRequest": {
            "type": "object",
            "properties": {
                "base64_image": {"type": "string", "example": "data:image/png;base64,iVBORw0KGgo..."},
                "num_inference_steps": {"type": "integer", "example": 20},
                "original_prompt": {"type": "string"},
                "prompt": {"type": "string", "example": "an oil painting of mountains"},
                "sampling_steps": {"type": "integer", "example": 10},
                "scale": {"type": "integer", "example": 7},
                "strength": {"type": "number", "example": 0.75}
            }
        },
        "types.ImageToImageResponse": {
            "type": "object",
            "properties": {
                "base64_image": {"type": "string"},
                "original_prompt": {"type": "string"},
                "prompt": {"type": "string"},
                "status": {"type": "string", "example": "success"}
            }
        },
        "types.RootResponse": {
            "type": "object",
            "properties": {
                "device": {"type": "string", "example": "cuda"},
                "message": {"type": "string", "example": "artifyd is running!"},
                "model": {"type": "string", "example": "stabilityai/stable-diffusion-2-1-base"},
                "status": {"type": "string", "example": "healthy"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "artifyd API",
	Description:      "HTTP API for text-to-image and image-to-image diffusion generation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
