// Package docs holds the OpenAPI document served at /swagger/*.
// Regenerate with: swag init -g cmd/identity-api/main.go -o docs
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
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current identity",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.meResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/roles": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["roles"],
                "summary": "Assign a role",
                "parameters": [
                    {"description": "Role assignment", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.assignRoleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.assignRoleResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/roles/{user_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["roles"],
                "summary": "List a user's roles",
                "parameters": [
                    {"type": "string", "description": "Target user id", "name": "user_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.userRolesResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/roles/{user_id}/{role}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["roles"],
                "summary": "Revoke a role",
                "parameters": [
                    {"type": "string", "description": "Target user id", "name": "user_id", "in": "path", "required": true},
                    {"type": "string", "description": "Role name", "name": "role", "in": "path", "required": true},
                    {"type": "string", "description": "Reason recorded in the audit log", "name": "reason", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.revokeRoleResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/audit-logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Query audit logs",
                "parameters": [
                    {"type": "string", "name": "user_id", "in": "query"},
                    {"type": "string", "name": "event_type", "in": "query"},
                    {"type": "string", "name": "start_date", "in": "query"},
                    {"type": "string", "name": "end_date", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.auditLogsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/auth/webhooks/user-created": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "User created webhook",
                "parameters": [
                    {"type": "string", "description": "Hex HMAC-SHA256 of the raw body", "name": "X-Supabase-Signature", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.webhookResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/users/me/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Get my profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Profile"}}
                }
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Update my profile",
                "parameters": [
                    {"description": "Fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.updateProfileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Profile"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/health": {
            "get": {"produces": ["application/json"], "tags": ["health"], "summary": "Liveness probe", "responses": {"200": {"description": "OK"}}}
        },
        "/health/ready": {
            "get": {"produces": ["application/json"], "tags": ["health"], "summary": "Readiness probe", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        }
    },
    "definitions": {
        "domain.RoleAssignment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "role": {"type": "string", "enum": ["customer", "receptionist", "technician", "admin"]},
                "assigned_at": {"type": "string"},
                "assigned_by": {"type": "string"},
                "is_primary": {"type": "boolean"}
            }
        },
        "domain.ProfileSnapshot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "full_name": {"type": "string"},
                "avatar_url": {"type": "string"}
            }
        },
        "domain.Profile": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "full_name": {"type": "string"},
                "avatar_url": {"type": "string"},
                "phone": {"type": "string"},
                "birth_date": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.AuditEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "event_type": {"type": "string"},
                "metadata": {"type": "object"},
                "ip_address": {"type": "string"},
                "user_agent": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "handler.errorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string", "example": "forbidden"},
                        "message": {"type": "string", "example": "access forbidden"},
                        "detail": {"type": "string"}
                    }
                }
            }
        },
        "handler.meResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "email": {"type": "string"},
                "primary_role": {"type": "string"},
                "roles": {"type": "array", "items": {"$ref": "#/definitions/domain.RoleAssignment"}},
                "profile": {"$ref": "#/definitions/domain.ProfileSnapshot"}
            }
        },
        "handler.assignRoleRequest": {
            "type": "object",
            "required": ["role", "user_id"],
            "properties": {
                "user_id": {"type": "string"},
                "role": {"type": "string"},
                "is_primary": {"type": "boolean"},
                "reason": {"type": "string", "maxLength": 500}
            }
        },
        "handler.assignRoleResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "outcome": {"type": "string", "enum": ["created", "already_exists", "promoted"]},
                "assignment": {"$ref": "#/definitions/domain.RoleAssignment"}
            }
        },
        "handler.revokeRoleResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "removed": {"type": "boolean"},
                "user_id": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "handler.userRolesResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "roles": {"type": "array", "items": {"$ref": "#/definitions/domain.RoleAssignment"}}
            }
        },
        "handler.auditLogsResponse": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "logs": {"type": "array", "items": {"$ref": "#/definitions/domain.AuditEvent"}}
            }
        },
        "handler.updateProfileRequest": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string", "maxLength": 255, "minLength": 1},
                "avatar_url": {"type": "string"},
                "phone": {"type": "string"},
                "birth_date": {"type": "string"}
            }
        },
        "handler.webhookResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "user_id": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Identity Service API",
	Description:      "Authentication, roles and audit for the spa booking platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
