// Package docs registers the OpenAPI description served by Swagger UI.
//
// The template mirrors the godoc annotations on the handlers in
// internal/http/handlers; regenerate with `swag init -g cmd/server/main.go`
// after changing them.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthcheck/": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "operationId": "healthCheck",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/healthcheck/details": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check with service and database details",
                "operationId": "healthDetails",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/errorcheck/conflict": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["ErrorCheck"],
                "summary": "Always answers CONCURRENCY_CONFLICT_ERROR",
                "operationId": "errorCheckConflict",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/errorcheck/system": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["ErrorCheck"],
                "summary": "Panics; the pipeline answers SYSTEM_ERROR",
                "operationId": "errorCheckSystem",
                "responses": {"500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/errorcheck/db": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["ErrorCheck"],
                "summary": "Runs a failing statement; the pipeline answers DB_OPERATIONAL",
                "operationId": "errorCheckDB",
                "responses": {"500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/projects": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Projects"],
                "summary": "List projects (paginated)",
                "operationId": "listProjects",
                "parameters": [
                    {"type": "integer", "default": 0, "description": "Rows to skip", "name": "skip", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "string", "example": "name", "description": "Sort field", "name": "sort_by", "in": "query"},
                    {"type": "boolean", "description": "Descending order", "name": "sort_desc", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates a project owned by the caller.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Projects"],
                "summary": "Create a project",
                "operationId": "createProject",
                "parameters": [
                    {"description": "Create project payload", "name": "body", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.CreateProjectRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/projects/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Projects"],
                "summary": "Get a project",
                "operationId": "getProject",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "example": "tasks", "description": "Relations to load", "name": "join", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Partial update. updated_at must equal the stored value, otherwise CONCURRENCY_CONFLICT_ERROR.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Projects"],
                "summary": "Update a project",
                "operationId": "updateProject",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "id", "in": "path", "required": true},
                    {"description": "Update payload", "name": "body", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.UpdateProjectRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Projects"],
                "summary": "Delete a project and its tasks",
                "operationId": "deleteProject",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        },
        "/projects/{id}/tasks": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "List the tasks of a project",
                "operationId": "listTasks",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Add a task to a project",
                "operationId": "createTask",
                "parameters": [
                    {"type": "string", "description": "Project ID", "name": "id", "in": "path", "required": true},
                    {"description": "Task payload", "name": "body", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.CreateTaskRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}}
            }
        }
    },
    "definitions": {
        "handlers.CreateProjectRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "Website relaunch"},
                "description": {"type": "string", "example": "Everything for the Q3 launch"}
            }
        },
        "handlers.UpdateProjectRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "Website relaunch v2"},
                "description": {"type": "string"},
                "updated_at": {"type": "string", "example": "2025-03-04 05:06:07"}
            }
        },
        "handlers.CreateTaskRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string", "example": "Draft landing page"}
            }
        },
        "response.Item": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "RESOURCE_NOT_FOUND"},
                "message": {"type": "string"}
            }
        },
        "response.Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/response.Item"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "go-service-shell API",
	Description:      "Service shell with a fixed request pipeline: logging, database session, bearer authentication.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
