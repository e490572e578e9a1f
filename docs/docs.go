// Package docs holds the OpenAPI document served under /swagger when the
// binary is built with -tags=swagger. Regenerate with `make swagger-gen`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "patchscope maintainers"
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
        "/api/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/api/model-info": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Describe the loaded model",
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/types.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/types.ModelInfo"}}}]}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/activations": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Per-layer hidden state norms",
                "parameters": [
                    {"description": "Prompt and optional layer indices", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ActivationsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/types.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/types.ActivationsResult"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/activations/arrow": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/vnd.apache.arrow.stream"],
                "tags": ["analysis"],
                "summary": "Per-layer hidden state norms as Arrow IPC",
                "parameters": [
                    {"description": "Prompt and optional layer indices", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ActivationsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/patchscope": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Patch a source hidden state into a target generation",
                "parameters": [
                    {"description": "Prompts and patch indices", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.PatchscopeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/types.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/types.PatchscopeResult"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List GGUF models in the models directory",
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/types.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/types.ModelsResponse"}}}]}}
                }
            }
        },
        "/api/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Recent analysis runs, newest first",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of runs (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/types.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/types.RunsResponse"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Fetch one analysis run",
                "parameters": [
                    {"type": "string", "description": "Run id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/types.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/types.Run"}}}]}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ActivationsRequest": {
            "type": "object",
            "properties": {
                "layer_indices": {"type": "array", "items": {"type": "integer"}, "example": [0, 1, 2]},
                "prompt": {"type": "string", "example": "The Eiffel Tower is in"}
            }
        },
        "types.ActivationsResult": {
            "type": "object",
            "properties": {
                "activations": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "number"}}},
                "token_ids": {"type": "array", "items": {"type": "integer"}},
                "tokens": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "Prompt is required"},
                "success": {"type": "boolean", "example": false}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "model_loaded": {"type": "boolean", "example": true},
                "status": {"type": "string", "example": "healthy"}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "family": {"type": "string", "example": "llama"},
                "id": {"type": "string", "example": "Llama-3.2-1B.Q8_0.gguf"},
                "loaded": {"type": "boolean"},
                "name": {"type": "string", "example": "Llama 3.2 1B"},
                "path": {"type": "string", "example": "/home/user/models/llm/Llama-3.2-1B.Q8_0.gguf"},
                "quant": {"type": "string", "example": "Q8_0"},
                "size_bytes": {"type": "integer", "example": 1321083392}
            }
        },
        "types.ModelInfo": {
            "type": "object",
            "properties": {
                "hidden_size": {"type": "integer", "example": 2048},
                "model_id": {"type": "string", "example": "meta-llama/Llama-3.2-1B"},
                "num_layers": {"type": "integer", "example": 16},
                "vocab_size": {"type": "integer", "example": 128256}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}
            }
        },
        "types.PatchConfig": {
            "type": "object",
            "properties": {
                "source_layer_idx": {"type": "integer", "example": 2},
                "source_token_idx": {"type": "integer", "example": -1},
                "target_layer_idx": {"type": "integer", "example": 2},
                "target_token_idx": {"type": "integer", "example": -3}
            }
        },
        "types.PatchscopeRequest": {
            "type": "object",
            "properties": {
                "n_tokens": {"type": "integer", "example": 1},
                "source_layer_idx": {"type": "integer", "example": 2},
                "source_prompt": {"type": "string", "example": "Harry"},
                "source_token_idx": {"type": "integer", "example": -1},
                "target_layer_idx": {"type": "integer", "example": 2},
                "target_prompt": {"type": "string", "example": "Respond only with the completion to this pattern: Man -> man, Car -> car, x ->"},
                "target_token_idx": {"type": "integer", "example": -3}
            }
        },
        "types.PatchscopeResult": {
            "type": "object",
            "properties": {
                "baseline_response": {"type": "string"},
                "original_response": {"type": "string", "example": "x"},
                "patch_config": {"$ref": "#/definitions/types.PatchConfig"},
                "patched_response": {"type": "string", "example": "Harry"},
                "source_prompt": {"type": "string", "example": "Harry"},
                "source_tokens": {"type": "array", "items": {"type": "string"}},
                "target_prompt": {"type": "string"},
                "target_tokens": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.Run": {
            "type": "object",
            "properties": {
                "created_unix": {"type": "integer", "example": 1700000000},
                "duration_ms": {"type": "integer", "example": 412},
                "id": {"type": "string", "example": "2f1c3a9e-7c1b-4f57-9d55-0c9a0b3d2f11"},
                "kind": {"type": "string", "example": "patchscope"},
                "model_id": {"type": "string", "example": "meta-llama/Llama-3.2-1B"},
                "request": {"type": "object"},
                "response": {"type": "object"}
            }
        },
        "types.RunsResponse": {
            "type": "object",
            "properties": {
                "runs": {"type": "array", "items": {"$ref": "#/definitions/types.Run"}}
            }
        },
        "types.SuccessResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "success": {"type": "boolean", "example": true}
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
	Title:            "patchscope API",
	Description:      "Inspect and patch hidden states of a local GGUF language model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
